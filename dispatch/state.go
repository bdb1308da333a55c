package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/builderkit/modloader/fragment"
	"github.com/builderkit/modloader/hostevent"
	"github.com/builderkit/modloader/records"
)

// State is everything the dispatcher knows about the host page: readiness,
// the host's global configuration, credentials, the navigation flag, cached
// fragments and the activation ledger.
//
// Only the dispatch goroutine writes it. Config builders and the records
// client read it from worker goroutines.
type State struct {
	mu          sync.RWMutex
	ready       bool
	hostConfig  map[string]map[string]any
	credentials records.Credentials
	navigating  bool

	sessionID string
	ledger    *Ledger
	fragments *fragment.Cache
}

// NewState returns the state of a new session.
func NewState() *State {
	return &State{
		hostConfig: make(map[string]map[string]any),
		sessionID:  uuid.NewString(),
		ledger:     NewLedger(),
		fragments:  fragment.NewCache(),
	}
}

// HostConfig returns the host's configuration entry for moduleID.
func (s *State) HostConfig(moduleID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.hostConfig[moduleID]
	return cfg, ok
}

// Fragment returns the sanitized HTML cached for an activation key.
func (s *State) Fragment(key string) (string, bool) {
	return s.fragments.Get(key)
}

// Credentials returns the credentials supplied by the host. It satisfies
// records.CredentialsFunc.
func (s *State) Credentials(context.Context) (records.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.credentials.Token == "" {
		return records.Credentials{}, records.ErrNoCredentials
	}
	return s.credentials, nil
}

// Ready reports whether the host announced its global context.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ready
}

// Navigating reports whether a hash change happened since the last scene
// render.
func (s *State) Navigating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.navigating
}

// SessionID identifies this dispatcher session in logs and traces.
func (s *State) SessionID() string {
	return s.sessionID
}

// Ledger returns the activation ledger.
func (s *State) Ledger() *Ledger {
	return s.ledger
}

func (s *State) applyHostReady(p hostevent.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready = true
	s.credentials = records.Credentials{Token: p.Token, UserID: p.UserID}
	s.hostConfig = make(map[string]map[string]any, len(p.Config))
	for id, v := range p.Config {
		if entry, ok := v.(map[string]interface{}); ok {
			s.hostConfig[id] = entry
		}
	}
}

func (s *State) setNavigating(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.navigating = v
}

// resetScene resets per-scene state when sceneID is a new scene.
func (s *State) resetScene(sceneID string) bool {
	if !s.ledger.ResetOnSceneChange(sceneID) {
		return false
	}
	s.fragments.Reset()
	return true
}
