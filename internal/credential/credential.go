// Package credential holds the delegated-access credentials each user has
// granted for each calendar backend.
//
// Credentials are obtained and refreshed by an external authorization flow and
// handed to a Store. The aggregation engine only reads from it.
package credential

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/logging"
)

// ErrAbsent is returned when no usable credential exists for a user and backend.
var ErrAbsent = errors.New("credential absent")

// Credential is a bearer token scoped to one user and one backend.
type Credential struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// Valid reports whether the credential carries a token that has not expired at now.
// A zero Expiry never expires.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.Expiry.IsZero() || now.Before(c.Expiry)
}

// Token converts the credential to an oauth2 token for use with HTTP clients.
func (c Credential) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   tokenType,
		Expiry:      c.Expiry,
	}
}

// TokenSource returns a static token source for the credential.
func (c Credential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(c.Token())
}

// String never exposes the token itself.
func (c Credential) String() string {
	if c.Expiry.IsZero() {
		return logging.SanitizeToken(c.AccessToken)
	}
	return fmt.Sprintf("%s expires %s", logging.SanitizeToken(c.AccessToken), c.Expiry.UTC().Format(time.RFC3339))
}

// FromToken converts an oauth2 token. Refresh tokens are dropped; refreshing
// is the job of the authorization flow.
func FromToken(tok *oauth2.Token) Credential {
	if tok == nil {
		return Credential{}
	}
	return Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
	}
}

// Store maps (user, backend) to the current credential.
type Store interface {
	// Store replaces any existing credential for the key.
	Store(userID string, backend event.Source, cred Credential)
	// Get returns the credential for the key. Expired credentials are reported absent.
	Get(userID string, backend event.Source) (Credential, bool)
	// Delete forgets the credential for the key, e.g. on logout.
	Delete(userID string, backend event.Source)
}

// Require looks up a credential and returns an error wrapping ErrAbsent when
// none is usable.
func Require(s Store, userID string, backend event.Source) (Credential, error) {
	cred, ok := s.Get(userID, backend)
	if !ok {
		return Credential{}, fmt.Errorf("%w for %s on %s", ErrAbsent, logging.AnonymizeEmail(userID), backend)
	}
	return cred, nil
}
