package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Translate/internal/core"
	"github.com/dkeye/Translate/internal/domain"
	"github.com/rs/zerolog/log"
)

type relayEntry struct {
	Relay  core.RelaySession
	Cancel context.CancelFunc
}

// Registry tracks live relay sessions for the REST surface and shutdown.
type Registry struct {
	mu     sync.RWMutex
	relays map[domain.SessionID]*relayEntry
}

func NewRegistry() *Registry {
	return &Registry{
		relays: make(map[domain.SessionID]*relayEntry),
	}
}

func (r *Registry) Bind(relay core.RelaySession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relays[relay.ID()] = &relayEntry{Relay: relay, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(relay.ID())).Int("live", len(r.relays)).Msg("bound relay")
}

// Unbind removes the entry only if it still belongs to relay.
func (r *Registry) Unbind(relay core.RelaySession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid := relay.ID()
	if e, ok := r.relays[sid]; ok && e.Relay == relay {
		delete(r.relays, sid)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind relay")
	}
}

func (r *Registry) Get(sid domain.SessionID) (core.RelaySession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.relays[sid]; ok {
		return e.Relay, true
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.relays)
}

// Snapshots lists live relays ordered by start time.
func (r *Registry) Snapshots() []domain.RelaySnapshot {
	r.mu.RLock()
	relays := make([]core.RelaySession, 0, len(r.relays))
	for _, e := range r.relays {
		relays = append(relays, e.Relay)
	}
	r.mu.RUnlock()

	out := make([]domain.RelaySnapshot, 0, len(relays))
	for _, rel := range relays {
		out = append(out, rel.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (r *Registry) Cancel(sid domain.SessionID) bool {
	r.mu.RLock()
	e, ok := r.relays[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled relay")
	return true
}

// CancelAll stops every live relay; used on shutdown.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	entries := make([]*relayEntry, 0, len(r.relays))
	for _, e := range r.relays {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
	}
	return len(entries)
}
