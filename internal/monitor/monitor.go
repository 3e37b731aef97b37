package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alesut/pixel-agents/internal/config"
	"github.com/alesut/pixel-agents/internal/log"
	"github.com/alesut/pixel-agents/internal/session"
	"github.com/alesut/pixel-agents/internal/ws"
)

// ErrStopped is returned by requests made after the monitor loop exited.
var ErrStopped = errors.New("monitor stopped")

// Monitor owns the session registry and is the only goroutine that reads
// transcript files or mutates session state. Each tick runs to completion
// before the next one is armed. Requests from other goroutines (subscribe,
// snapshot, rescan) are queued to the same loop and served between ticks.
type Monitor struct {
	interval    time.Duration
	discovery   *Discovery
	registry    *session.Registry
	broadcaster *ws.Broadcaster
	health      *pollHealth
	metrics     *pollMetrics
	watcher     *dirWatcher // nil when file watching is off

	requests chan func()
	done     chan struct{}

	// findProcesses is swapped out in tests.
	findProcesses func(ctx context.Context, projectRoot string) ([]AgentProcess, error)
}

func New(cfg *config.Config, broadcaster *ws.Broadcaster) *Monitor {
	m := &Monitor{
		interval: cfg.Monitor.PollInterval,
		discovery: NewDiscovery(cfg.SessionsRoot, cfg.ProjectRoot,
			cfg.Monitor.DaysBack, cfg.Monitor.MaxSessions),
		broadcaster:   broadcaster,
		health:        newPollHealth(),
		metrics:       newPollMetrics(),
		requests:      make(chan func()),
		done:          make(chan struct{}),
		findProcesses: DiscoverAgentProcesses,
	}
	m.registry = session.NewRegistry(m.hydrate)

	if cfg.Monitor.WatchFiles {
		w, err := newDirWatcher(cfg.SessionsRoot)
		if err != nil {
			log.Warn().Err(err).Msg("file watching unavailable, polling only")
		} else {
			m.watcher = w
		}
	}
	return m
}

// Start runs the monitor loop until ctx is cancelled. The first pass
// registers existing sessions without emitting events; observers learn
// about them from the snapshot they receive on subscribe.
func (m *Monitor) Start(ctx context.Context) {
	defer close(m.done)

	var wake <-chan struct{}
	if m.watcher != nil {
		defer m.watcher.close()
		go m.watcher.run(ctx)
		wake = m.watcher.wake
	}

	log.Info().
		Str("sessions", m.discovery.Root()).
		Str("project", m.discovery.ProjectRoot()).
		Dur("interval", m.interval).
		Msg("monitor started")

	m.sync(false)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor stopped")
			return
		case <-timer.C:
			m.tick(ctx)
			timer.Reset(m.interval)
		case <-wake:
			m.tick(ctx)
			timer.Reset(m.interval)
		case req := <-m.requests:
			req()
		}
	}
}

// Done is closed once the loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// tick runs one discovery pass with live registration, then one tail pass
// per tracked session.
func (m *Monitor) tick(ctx context.Context) {
	start := time.Now()

	m.sync(true)
	for _, s := range m.registry.Sessions() {
		m.pollSession(ctx, s)
	}

	d := time.Since(start)
	m.health.recordTick(start, d)
	m.metrics.recordTick(ctx, d)
}

// sync registers every project session file not seen before. Live
// registrations announce themselves to subscribers. Watches are refreshed
// first so no write after discovery goes unnoticed.
func (m *Monitor) sync(live bool) {
	if m.watcher != nil {
		m.watcher.sync(m.discovery.DateDirs())
	}

	files, err := m.discovery.ProjectFiles()
	if err != nil {
		log.Warn().Err(err).Msg("session discovery")
		m.health.recordDiscoverFailure(err)
	} else {
		m.health.recordDiscoverSuccess()
	}

	for _, path := range files {
		m.register(path, live)
	}
}

func (m *Monitor) register(path string, live bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("path", path).Interface("panic", r).Msg("registering session")
			m.health.recordDiscoverFailure(fmt.Errorf("panic registering %s: %v", path, r))
		}
	}()

	s, created := m.registry.Register(path, live, m.emit)
	if created {
		log.Info().
			Int("agent", s.AgentID).
			Str("path", path).
			Str("status", s.Status.String()).
			Int("tools", s.ToolCount()).
			Bool("live", live).
			Msg("tracking new session")
	}
}

// hydrate replays a newly registered session's file silently.
func (m *Monitor) hydrate(s *session.SessionState) {
	res, err := Hydrate(s)
	m.health.recordPoll(res)
	if err != nil {
		log.Warn().Err(err).Int("agent", s.AgentID).Msg("hydrating session")
		m.health.recordTailFailure(s.AgentID, err)
	}
}

// pollSession tails one session. Failures, including panics, stay local to
// the session so the others are still observed.
func (m *Monitor) pollSession(ctx context.Context, s *session.SessionState) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("agent", s.AgentID).Interface("panic", r).Msg("polling session")
			m.health.recordPanic(s.AgentID, fmt.Errorf("panic polling %s: %v", s.Path, r))
		}
	}()

	res, err := Poll(s, m.emit)
	m.health.recordPoll(res)
	m.metrics.recordPoll(ctx, res)

	if res.Truncated {
		log.Info().Int("agent", s.AgentID).Str("path", s.Path).Msg("session truncated, replaying")
	}
	if err != nil {
		log.Debug().Err(err).Int("agent", s.AgentID).Msg("tailing session")
		m.health.recordTailFailure(s.AgentID, err)
		return
	}
	m.health.recordTailSuccess(s.AgentID)
	if res.Bytes > 0 {
		log.Debug().
			Int("agent", s.AgentID).
			Int64("bytes", res.Bytes).
			Int("lines", res.Lines).
			Int64("offset", s.Offset).
			Msg("tailed session")
	}
}

func (m *Monitor) emit(ev session.Event) {
	m.metrics.recordEvent(context.Background(), string(ev.Type))
	m.broadcaster.Publish(ev)
}

// do runs fn on the loop goroutine and waits for it to finish.
func (m *Monitor) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case m.requests <- func() { defer close(finished); fn() }:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop runs fn synchronously once it has taken it.
	<-finished
	return nil
}

// Subscribe attaches a new observer. Its first message is a snapshot taken
// between ticks, so it sees exactly the events after that state.
func (m *Monitor) Subscribe(ctx context.Context) (*ws.Subscription, error) {
	var sub *ws.Subscription
	err := m.do(ctx, func() {
		sub = m.broadcaster.Subscribe(m.registry.Snapshot())
	})
	return sub, err
}

func (m *Monitor) Unsubscribe(sub *ws.Subscription) {
	m.broadcaster.Unsubscribe(sub)
}

// Resync sends sub a fresh snapshot.
func (m *Monitor) Resync(ctx context.Context, sub *ws.Subscription) error {
	return m.do(ctx, func() {
		m.broadcaster.Resync(sub, m.registry.Snapshot())
	})
}

// Rescan runs a discovery pass now instead of waiting for the next tick.
func (m *Monitor) Rescan(ctx context.Context) error {
	return m.do(ctx, func() { m.sync(true) })
}

func (m *Monitor) Snapshot(ctx context.Context) (*session.Snapshot, error) {
	var snap *session.Snapshot
	err := m.do(ctx, func() { snap = m.registry.Snapshot() })
	return snap, err
}

// Health reports poller counters plus the Codex processes running in the
// project. The process scan happens off the loop.
func (m *Monitor) Health(ctx context.Context) (ws.HealthPayload, error) {
	var h ws.HealthPayload
	err := m.do(ctx, func() {
		h = m.health.snapshot()
		h.Sessions = m.registry.Len()
	})
	if err != nil {
		return h, err
	}

	h.ProjectRoot = m.discovery.ProjectRoot()
	h.SessionsRoot = m.discovery.Root()
	h.Subscribers = m.broadcaster.SubscriberCount()

	procs, err := m.findProcesses(ctx, h.ProjectRoot)
	if err != nil {
		log.Debug().Err(err).Msg("process scan")
		return h, nil
	}
	for _, p := range procs {
		h.Processes = append(h.Processes, ws.ProcessPayload{
			PID:        p.PID,
			WorkingDir: p.WorkingDir,
			StartTime:  p.StartTime,
			CmdLine:    p.CmdLine,
		})
	}
	return h, nil
}
