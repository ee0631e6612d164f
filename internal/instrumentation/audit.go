package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/calbridge/internal/logging"
)

// CalendarChange captures one write (create, update, delete) that the engine
// sent to a calendar backend on behalf of a user.
//
// # Privacy Considerations
//
// UserID usually is an email address. It is hashed in audit output unless
// the logger is configured with IncludePII.
type CalendarChange struct {
	Operation string
	Provider  string
	UserID    string
	// EventID is the backend id; for creates it is the id the backend assigned.
	EventID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewCalendarChange starts timing a change.
func NewCalendarChange(ctx context.Context, operation, provider, userID string) *CalendarChange {
	c := &CalendarChange{
		Operation: operation,
		Provider:  provider,
		UserID:    userID,
		StartTime: time.Now(),
	}
	c.TraceID, c.SpanID = SpanIDs(ctx)
	return c
}

// Complete stops the timer and records the outcome.
func (c *CalendarChange) Complete(eventID string, err error) *CalendarChange {
	c.Duration = time.Since(c.StartTime)
	if eventID != "" {
		c.EventID = eventID
	}
	c.Success = err == nil
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

// Status returns StatusSuccess or StatusError.
func (c *CalendarChange) Status() string {
	if c.Success {
		return StatusSuccess
	}
	return StatusError
}

func (c *CalendarChange) attrs(includePII bool) []any {
	attrs := []any{
		logging.Operation(c.Operation),
		logging.Provider(c.Provider),
		logging.Status(c.Status()),
		logging.Duration(c.Duration),
	}
	if includePII {
		attrs = append(attrs, slog.String("user", c.UserID))
	} else {
		attrs = append(attrs, logging.UserHash(c.UserID))
	}
	if c.EventID != "" {
		attrs = append(attrs, logging.EventID(c.EventID))
	}
	if c.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", c.TraceID), slog.String("span_id", c.SpanID))
	}
	if c.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, c.Error))
	}
	return attrs
}

// AuditLogger writes the audit trail of calendar writes.
// A nil *AuditLogger discards everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogChange writes one audit record. Failed changes are logged at warn level.
func (al *AuditLogger) LogChange(c *CalendarChange) {
	if al == nil || !al.enabled || c == nil {
		return
	}

	if c.Success {
		al.logger.Info("calendar_change", c.attrs(al.includePII)...)
	} else {
		al.logger.Warn("calendar_change_failed", c.attrs(al.includePII)...)
	}
}
