// Package credentials holds per-provider secrets for the lifetime of the
// process only. Nothing in this package may ever be written to a durable
// medium; the host wires ClearAll to its session-end path.
package credentials

import "sync"

// Credentials is the user-supplied secret material for one provider, plus the
// selected deployment environment when the provider defines variants.
type Credentials struct {
	Fields      map[string]string
	Environment string
}

// Field returns a credential field value, or "" when unset.
func (c Credentials) Field(name string) string {
	return c.Fields[name]
}

// Store is an in-memory credential store keyed by provider id.
type Store struct {
	mu    sync.RWMutex
	creds map[string]Credentials
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{creds: make(map[string]Credentials)}
}

// Set stores credentials for a provider, overwriting any prior record.
func (s *Store) Set(providerID string, creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[providerID] = copyCredentials(creds)
}

// Get returns a copy of the stored credentials, or nil when never set or
// cleared.
func (s *Store) Get(providerID string) *Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.creds[providerID]
	if !ok {
		return nil
	}
	c := copyCredentials(creds)
	return &c
}

// Has reports whether credentials exist for the provider.
func (s *Store) Has(providerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[providerID]
	return ok
}

// Clear removes the provider's credentials. Safe to call repeatedly.
func (s *Store) Clear(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, providerID)
}

// ClearAll wipes every stored credential. Wired to process shutdown so
// secrets never outlive the session.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = make(map[string]Credentials)
}

func copyCredentials(c Credentials) Credentials {
	fields := make(map[string]string, len(c.Fields))
	for k, v := range c.Fields {
		fields[k] = v
	}
	return Credentials{Fields: fields, Environment: c.Environment}
}
