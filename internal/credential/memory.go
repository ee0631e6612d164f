package credential

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/logging"
)

// DefaultCleanupInterval is how often MemoryStore evicts expired credentials.
const DefaultCleanupInterval = time.Minute

type key struct {
	user    string
	backend event.Source
}

// MemoryStore is an in-process Store. Each key holds a pointer to an immutable
// Credential, so a replace is a single atomic swap and readers never see a
// partially written value.
type MemoryStore struct {
	entries sync.Map // key -> *Credential

	now             func() time.Time
	cleanupInterval time.Duration
	logger          *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithCleanupInterval sets how often expired credentials are evicted.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithLogger sets the logger used for eviction messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store and starts its eviction goroutine.
// Call Close to stop it.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		logger:          slog.Default(),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupExpired()

	return s
}

// Store replaces the credential for the user and backend.
func (s *MemoryStore) Store(userID string, backend event.Source, cred Credential) {
	c := cred
	s.entries.Store(key{user: userID, backend: backend}, &c)
	s.logger.Debug("stored credential",
		logging.UserHash(userID),
		logging.Provider(backend.String()),
		slog.Time("expiry", cred.Expiry))
}

// Get returns the credential for the user and backend if it is still valid.
func (s *MemoryStore) Get(userID string, backend event.Source) (Credential, bool) {
	v, ok := s.entries.Load(key{user: userID, backend: backend})
	if !ok {
		return Credential{}, false
	}
	cred := *v.(*Credential)
	if !cred.Valid(s.now()) {
		return Credential{}, false
	}
	return cred, true
}

// Delete removes the credential for the user and backend.
func (s *MemoryStore) Delete(userID string, backend event.Source) {
	s.entries.Delete(key{user: userID, backend: backend})
}

// Len returns the number of stored credentials, expired or not.
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the eviction goroutine and waits for it to exit.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *MemoryStore) cleanupExpired() {
	defer close(s.done)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

// evictExpired drops expired credentials. CompareAndDelete keeps a credential
// that was refreshed between the load and the delete.
func (s *MemoryStore) evictExpired() int {
	now := s.now()
	evicted := 0
	s.entries.Range(func(k, v any) bool {
		cred := v.(*Credential)
		if cred.Expiry.IsZero() || now.Before(cred.Expiry) {
			return true
		}
		if s.entries.CompareAndDelete(k, v) {
			evicted++
			ek := k.(key)
			s.logger.Debug("evicted expired credential",
				logging.UserHash(ek.user),
				logging.Provider(ek.backend.String()))
		}
		return true
	})
	return evicted
}
