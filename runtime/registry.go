package runtime

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
)

// Registry is the authoritative mapping of online usernames to their
// session sinks. It is the single point of shared mutable state in the
// relay: insert, remove, lookup, broadcast, route and snapshot all
// serialize on one lock, so membership can never change underneath an
// iteration.
//
// An entry exists if and only if that session completed authentication
// and has not yet disconnected.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[string]contract.Sink
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]contract.Sink),
	}
}

// Insert registers a sink under a username. It fails without inserting
// when the username is already present, which makes it the arbiter for
// concurrent authentication attempts: exactly one wins.
func (r *Registry) Insert(username string, sink contract.Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[username]; taken {
		return false
	}
	r.sessions[username] = sink
	r.log.Info("User registered", "username", username, "online", len(r.sessions))
	return true
}

// Remove drops a username from the registry. No-op if absent.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[username]; !ok {
		return
	}
	delete(r.sessions, username)
	r.log.Info("User removed", "username", username, "online", len(r.sessions))
}

// Lookup resolves a username to its sink, read-only.
func (r *Registry) Lookup(username string) (contract.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sessions[username]
	return sink, ok
}

// Broadcast delivers a record to every registered session except the
// excluded username (empty string excludes nobody). Delivery happens on a
// point-in-time snapshot so a recipient's own enqueue can never hold the
// lock; a failed recipient is removed and closed without aborting
// delivery to the rest.
func (r *Registry) Broadcast(m domain.Message, excluding string) {
	r.mu.RLock()
	recipients := make(map[string]contract.Sink, len(r.sessions))
	for username, sink := range r.sessions {
		if username == excluding {
			continue
		}
		recipients[username] = sink
	}
	r.mu.RUnlock()

	for username, sink := range recipients {
		if err := sink.Enqueue(m); err != nil {
			r.log.Warn("Dropping unreachable recipient", "username", username, "error", err)
			r.Remove(username)
			_ = sink.Close()
		}
	}
}

// Route delivers a record to exactly one username. Returns false if the
// recipient is not registered; the caller decides on the offline error.
func (r *Registry) Route(m domain.Message, to string) bool {
	sink, ok := r.Lookup(to)
	if !ok {
		return false
	}
	if err := sink.Enqueue(m); err != nil {
		r.log.Warn("Dropping unreachable recipient", "username", to, "error", err)
		r.Remove(to)
		_ = sink.Close()
		return false
	}
	return true
}

// Snapshot returns the currently registered usernames, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	users := lo.Keys(r.sessions)
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}
