// Package reconcile merges authoritative counter pushes into a
// per-entity override map that screens overlay on top of REST-fetched
// base data.
package reconcile

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/router"
)

// Patch is the override for one entity: latest counter values plus the
// viewer's own like/helpful toggle when known. LikedByViewer is nil
// until an event (or optimistic toggle) establishes it.
type Patch struct {
	Counters      map[string]int
	LikedByViewer *bool
}

// Reconciler applies counter-update events with last-arrival-wins
// semantics per (entity, counter). The wire protocol carries no
// sequence numbers, so a patch reordered by the long-polling fallback
// can regress a counter; arrival order is all there is to go on.
type Reconciler struct {
	viewerID string
	logger   *slog.Logger

	mu      sync.RWMutex
	patches map[string]*Patch
}

// New creates a reconciler. viewerID identifies the local user so the
// echo of their own toggle updates the viewer flag while other users'
// toggles of the same entity only move the aggregate count.
func New(viewerID string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		viewerID: viewerID,
		logger:   logger,
		patches:  make(map[string]*Patch),
	}
}

// Bind registers a handler for every counter-update event name.
func (r *Reconciler) Bind(rt *router.Router) []*router.Subscription {
	names := []string{
		event.ProjectUpdateName,
		event.ChallengeUpdateName,
		event.SquadUpdateName,
		event.GeneralPostUpdateName,
	}

	subs := make([]*router.Subscription, 0, len(names))
	for _, name := range names {
		name := name
		subs = append(subs, rt.On(name, func(data json.RawMessage) {
			var u event.CounterUpdate
			if err := json.Unmarshal(data, &u); err != nil {
				r.logger.Warn("bad counter update payload", "event", name, "error", err)
				return
			}
			r.Apply(u)
		}))
	}
	return subs
}

// Apply merges one authoritative update.
func (r *Reconciler) Apply(u event.CounterUpdate) {
	if u.EntityID == "" {
		r.logger.Warn("counter update without entity id, dropping", "type", string(u.Type))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.patches[u.EntityID]
	if p == nil {
		p = &Patch{Counters: make(map[string]int)}
		r.patches[u.EntityID] = p
	}

	p.Counters[u.CounterName()] = u.Value

	if u.ActorID == r.viewerID && u.Liked != nil {
		liked := *u.Liked
		p.LikedByViewer = &liked
	}
}

// ApplyLocal records an optimistic mutation through the same map, so
// the server's echo of the viewer's own action lands idempotently
// instead of flickering the UI.
func (r *Reconciler) ApplyLocal(entityID, counter string, value int, liked *bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.patches[entityID]
	if p == nil {
		p = &Patch{Counters: make(map[string]int)}
		r.patches[entityID] = p
	}

	p.Counters[counter] = value
	if liked != nil {
		l := *liked
		p.LikedByViewer = &l
	}
}

// PatchFor returns a copy of the override for an entity. The zero
// Patch (nil Counters) means no overrides exist.
func (r *Reconciler) PatchFor(entityID string) Patch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := r.patches[entityID]
	if p == nil {
		return Patch{}
	}

	out := Patch{Counters: make(map[string]int, len(p.Counters))}
	for k, v := range p.Counters {
		out.Counters[k] = v
	}
	if p.LikedByViewer != nil {
		l := *p.LikedByViewer
		out.LikedByViewer = &l
	}
	return out
}

// Forget drops the override for an entity, for screens discarding
// their cache on unmount.
func (r *Reconciler) Forget(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.patches, entityID)
}
