package monitor

import (
	"sort"
	"time"

	"github.com/alesut/pixel-agents/internal/ws"
)

// failureThreshold is the number of consecutive failures after which
// discovery is reported failed, or a session degraded.
const failureThreshold = 3

// pollHealth tracks consecutive failure counts for discovery and for each
// session's tail pass. It is only touched by the monitor loop, so it needs
// no lock.
type pollHealth struct {
	ticks            uint64
	lastTick         time.Time
	lastTickDuration time.Duration
	lines            uint64
	malformed        uint64
	truncations      uint64
	panics           uint64

	discoverFailures int
	lastDiscoverErr  string
	lastDiscoverFail time.Time
	tailFailures     map[int]int // keyed by agent ID
	lastTailErr      string
	lastTailFail     time.Time
}

func newPollHealth() *pollHealth {
	return &pollHealth{tailFailures: make(map[int]int)}
}

func (h *pollHealth) recordTick(start time.Time, d time.Duration) {
	h.ticks++
	h.lastTick = start
	h.lastTickDuration = d
}

func (h *pollHealth) recordPoll(res PollResult) {
	h.lines += uint64(res.Lines)
	h.malformed += uint64(res.Malformed)
	if res.Truncated {
		h.truncations++
	}
}

func (h *pollHealth) recordDiscoverSuccess() {
	h.discoverFailures = 0
	h.lastDiscoverErr = ""
}

func (h *pollHealth) recordDiscoverFailure(err error) {
	h.discoverFailures++
	h.lastDiscoverErr = err.Error()
	h.lastDiscoverFail = time.Now()
}

func (h *pollHealth) recordTailSuccess(agentID int) {
	delete(h.tailFailures, agentID)
}

func (h *pollHealth) recordTailFailure(agentID int, err error) {
	h.tailFailures[agentID]++
	h.lastTailErr = err.Error()
	h.lastTailFail = time.Now()
}

// recordPanic counts a recovered panic in a session's poll as a tail
// failure for that session.
func (h *pollHealth) recordPanic(agentID int, err error) {
	h.panics++
	h.recordTailFailure(agentID, err)
}

func (h *pollHealth) status() ws.HealthStatus {
	if h.discoverFailures >= failureThreshold {
		return ws.StatusFailed
	}
	if len(h.degradedSessions()) > 0 {
		return ws.StatusDegraded
	}
	return ws.StatusHealthy
}

// degradedSessions returns the agents whose tail pass has failed at least
// failureThreshold times in a row.
func (h *pollHealth) degradedSessions() []int {
	var ids []int
	for id, n := range h.tailFailures {
		if n >= failureThreshold {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// lastError prefers whichever of the discovery and tail errors is newer.
func (h *pollHealth) lastError() string {
	if h.lastDiscoverErr != "" && (h.lastTailErr == "" || h.lastDiscoverFail.After(h.lastTailFail)) {
		return h.lastDiscoverErr
	}
	return h.lastTailErr
}

func (h *pollHealth) snapshot() ws.HealthPayload {
	return ws.HealthPayload{
		Status:           h.status(),
		Ticks:            h.ticks,
		LastTick:         h.lastTick,
		LastTickDuration: h.lastTickDuration,
		Lines:            h.lines,
		MalformedLines:   h.malformed,
		Truncations:      h.truncations,
		Panics:           h.panics,
		DiscoverFailures: h.discoverFailures,
		DegradedSessions: h.degradedSessions(),
		LastError:        h.lastError(),
	}
}
