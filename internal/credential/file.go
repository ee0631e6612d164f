package credential

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"

	"github.com/teemow/calbridge/internal/event"
)

// LoadFile reads a JSON object mapping backend names to oauth2 tokens, as
// written by the authorization flow:
//
//	{"google": {"access_token": "...", "token_type": "Bearer", "expiry": "..."}}
func LoadFile(path string) (map[event.Source]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var raw map[string]*oauth2.Token
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}

	creds := make(map[event.Source]Credential, len(raw))
	for name, tok := range raw {
		source, err := event.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("credentials file %s: %w", path, err)
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, fmt.Errorf("credentials file %s: empty access token for %s", path, source)
		}
		creds[source] = FromToken(tok)
	}
	return creds, nil
}

// Sync makes creds the user's complete set of credentials: each one is
// stored and every backend missing from creds is deleted.
func Sync(s Store, userID string, creds map[event.Source]Credential) {
	for _, source := range event.Sources {
		if cred, ok := creds[source]; ok {
			s.Store(userID, source, cred)
		} else {
			s.Delete(userID, source)
		}
	}
}
