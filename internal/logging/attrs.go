package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Attribute keys shared by every calbridge log line.
const (
	KeyOperation = "operation"
	KeyProvider  = "provider"
	KeyUserHash  = "user_hash"
	KeyEventID   = "event_id"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyCount     = "count"
	KeyError     = "error"
)

// Status values. The instrumentation package has its own copies because it
// imports this one.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// WithOperation scopes logger to one engine operation.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

// WithProvider scopes logger to one calendar backend.
func WithProvider(logger *slog.Logger, provider string) *slog.Logger {
	return logger.With(Provider(provider))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

func Provider(name string) slog.Attr { return slog.String(KeyProvider, name) }

func EventID(id string) slog.Attr { return slog.String(KeyEventID, id) }

func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }

func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }

func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }

// Err returns the error attribute. A nil error yields an empty group, which
// handlers drop, so callers need not check.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail hashes a user identifier so log lines and spans of one user
// can be correlated without recording who it is.
func AnonymizeEmail(userID string) string {
	if userID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userID))
	return "user:" + hex.EncodeToString(sum[:8])
}

// UserHash is the attribute form of AnonymizeEmail.
func UserHash(userID string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(userID))
}

// SanitizeToken describes a token by its length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
