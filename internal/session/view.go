package session

import "sort"

// View is an observer's picture of the agents, built purely from the event
// stream. A resyncSnapshot replaces it wholesale; every other event patches
// it. Not safe for concurrent use.
type View struct {
	agents map[int]*viewAgent
}

type viewAgent struct {
	status Status
	tools  []ActiveTool
}

func NewView() *View {
	return &View{agents: make(map[int]*viewAgent)}
}

func (v *View) agent(id int) *viewAgent {
	a, ok := v.agents[id]
	if !ok {
		a = &viewAgent{status: Waiting}
		v.agents[id] = a
	}
	return a
}

// Apply folds one event into the view.
func (v *View) Apply(ev Event) {
	switch ev.Type {
	case ResyncSnapshot:
		v.agents = make(map[int]*viewAgent)
		if ev.Snapshot == nil {
			return
		}
		for _, id := range ev.Snapshot.AgentIDs {
			as := ev.Snapshot.PerAgent[id]
			a := v.agent(id)
			a.status = as.Status
			a.tools = append([]ActiveTool(nil), as.ActiveTools...)
		}
	case SessionCreated:
		v.agent(ev.AgentID)
	case StatusChanged:
		v.agent(ev.AgentID).status = ev.Status
	case ToolStarted:
		a := v.agent(ev.AgentID)
		for _, t := range a.tools {
			if t.ToolID == ev.ToolID {
				return
			}
		}
		a.tools = append(a.tools, ActiveTool{
			ToolID:   ev.ToolID,
			ToolInfo: ToolInfo{Name: ev.ToolName, StatusText: ev.StatusText},
		})
	case ToolFinished:
		a := v.agent(ev.AgentID)
		for i, t := range a.tools {
			if t.ToolID == ev.ToolID {
				a.tools = append(a.tools[:i], a.tools[i+1:]...)
				break
			}
		}
	case ToolsCleared:
		v.agent(ev.AgentID).tools = nil
	}
}

// AgentIDs returns the known agents in ascending order.
func (v *View) AgentIDs() []int {
	ids := make([]int, 0, len(v.agents))
	for id := range v.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (v *View) Agent(id int) (AgentSnapshot, bool) {
	a, ok := v.agents[id]
	if !ok {
		return AgentSnapshot{}, false
	}
	return AgentSnapshot{
		Status:      a.status,
		ActiveTools: append(make([]ActiveTool, 0, len(a.tools)), a.tools...),
	}, true
}

// Snapshot renders the view in the same shape the registry produces, so
// the two can be compared directly.
func (v *View) Snapshot() *Snapshot {
	snap := NewSnapshot()
	for _, id := range v.AgentIDs() {
		a, _ := v.Agent(id)
		snap.AgentIDs = append(snap.AgentIDs, id)
		snap.PerAgent[id] = a
	}
	return snap
}
