package session

// EventType names a state-change event. The values double as the wire
// message types.
type EventType string

const (
	SessionCreated EventType = "sessionCreated"
	StatusChanged  EventType = "statusChanged"
	ToolStarted    EventType = "toolStarted"
	ToolFinished   EventType = "toolFinished"
	ToolsCleared   EventType = "toolsCleared"
	ResyncSnapshot EventType = "resyncSnapshot"
)

// Event is a tagged union; which fields are set depends on Type.
type Event struct {
	Type    EventType
	AgentID int

	Status Status // StatusChanged

	ToolID     string // ToolStarted, ToolFinished
	ToolName   string // ToolStarted
	StatusText string // ToolStarted

	Snapshot *Snapshot // ResyncSnapshot
}

// Emitter receives events as they are produced. A nil Emitter discards
// them, which is how hydration stays silent.
type Emitter func(Event)

func (e Emitter) emit(ev Event) {
	if e != nil {
		e(ev)
	}
}

// AgentSnapshot is the current truth for one agent.
type AgentSnapshot struct {
	Status      Status       `json:"status"`
	ActiveTools []ActiveTool `json:"activeTools"`
}

// Snapshot is the resyncSnapshot payload: every known agent, ascending by
// ID, with its status and in-flight tools.
type Snapshot struct {
	AgentIDs []int                 `json:"agentIds"`
	PerAgent map[int]AgentSnapshot `json:"perAgent"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		AgentIDs: []int{},
		PerAgent: make(map[int]AgentSnapshot),
	}
}

// ResyncEvent wraps snap in a resyncSnapshot event.
func ResyncEvent(snap *Snapshot) Event {
	return Event{Type: ResyncSnapshot, Snapshot: snap}
}
