package session

// Registry maps transcript paths to their SessionState and hands out agent
// IDs. Like the states it holds, it is confined to the monitor loop and
// carries no lock.
//
// IDs are never reused and entries are never removed while the process
// runs.
type Registry struct {
	hydrate  func(*SessionState)
	sessions map[string]*SessionState
	order    []*SessionState
	nextID   int
}

// NewRegistry returns an empty registry. hydrate is called once on every
// new state, before it is stored, to replay the file's existing content.
func NewRegistry(hydrate func(*SessionState)) *Registry {
	return &Registry{
		hydrate:  hydrate,
		sessions: make(map[string]*SessionState),
		nextID:   1,
	}
}

// Register returns the state tracked for path, creating and hydrating it
// on first sight. The boolean reports whether a new state was created. When
// live is set, a new session announces itself through emit.
func (r *Registry) Register(path string, live bool, emit Emitter) (*SessionState, bool) {
	if s, ok := r.sessions[path]; ok {
		return s, false
	}

	// The ID is only taken once hydration returns, so a path whose replay
	// panicked is retried under the same ID.
	s := NewSessionState(path, r.nextID)
	if r.hydrate != nil {
		r.hydrate(s)
	}
	r.nextID++
	r.sessions[path] = s
	r.order = append(r.order, s)

	if live {
		s.Announce(emit)
	}
	return s, true
}

func (r *Registry) Get(path string) (*SessionState, bool) {
	s, ok := r.sessions[path]
	return s, ok
}

// Sessions returns the tracked states in ascending agent ID order.
func (r *Registry) Sessions() []*SessionState {
	out := make([]*SessionState, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) Snapshot() *Snapshot {
	snap := NewSnapshot()
	for _, s := range r.order {
		snap.AgentIDs = append(snap.AgentIDs, s.AgentID)
		snap.PerAgent[s.AgentID] = s.Snapshot()
	}
	return snap
}
