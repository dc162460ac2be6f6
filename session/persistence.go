package session

import (
	"encoding/json"

	"github.com/jmcveigh/portfolio-auth/identity"
	"github.com/jmcveigh/portfolio-auth/internal/obscure"
)

// storageKey namespaces the single persisted record.
const storageKey = "portfolio.auth.session"

// persistedState is the durable subset of the store. The access token is
// explicitly excluded: it lives in volatile memory only and must be
// re-acquired via refresh after a reload.
type persistedState struct {
	User            *identity.Identity `json:"user"`
	SecurityContext *SecurityContext   `json:"securityContext"`
}

// persistLocked writes the durable subset through the obfuscation codec.
// Write failures are logged and skipped so no partial encode ever lands in
// storage; the in-memory state remains authoritative.
func (s *Store) persistLocked() {
	if s.user == nil || s.secCtx == nil {
		return
	}
	blob, err := json.Marshal(persistedState{User: s.user, SecurityContext: s.secCtx})
	if err != nil {
		s.logger.Warn().Err(err).Msg("skipping session persist: encode failed")
		return
	}
	encoded, err := obscure.Encode(blob)
	if err != nil {
		s.logger.Warn().Err(err).Msg("skipping session persist: obfuscation failed")
		return
	}
	if err := s.records.Set(storageKey, encoded); err != nil {
		s.logger.Warn().Err(err).Msg("skipping session persist: storage write failed")
	}
}

// loadPersisted reads the record written by persistLocked. A missing or
// undecodable value is "no prior session", never an error.
func (s *Store) loadPersisted() *persistedState {
	encoded, ok, err := s.records.Get(storageKey)
	if err != nil || !ok {
		return nil
	}
	blob, err := obscure.Decode(encoded)
	if err != nil {
		s.logger.Debug().Err(err).Msg("discarding undecodable persisted session")
		return nil
	}
	var state persistedState
	if err := json.Unmarshal(blob, &state); err != nil {
		s.logger.Debug().Err(err).Msg("discarding corrupt persisted session")
		return nil
	}
	if state.User == nil || state.SecurityContext == nil {
		return nil
	}
	return &state
}
