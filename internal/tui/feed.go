// Package tui is a terminal dashboard for the monitored agents. It renders
// a session.View fed either directly by an in-process monitor or by a
// remote server's /ws stream.
package tui

import (
	"context"
	"errors"
	"sync"

	"github.com/alesut/pixel-agents/internal/session"
	"github.com/alesut/pixel-agents/internal/ws"
)

// Feed is a source of session events for the dashboard. Next blocks until
// an event arrives. After a feed error the next successful call starts
// with a resyncSnapshot, so the view never needs to merge across a gap.
type Feed interface {
	Next(ctx context.Context) (session.Event, error)
	Resync(ctx context.Context) error
	Rescan(ctx context.Context) error
	Health(ctx context.Context) (ws.HealthPayload, error)
	Close()
}

// ErrFeedClosed is returned by Next after Close.
var ErrFeedClosed = errors.New("feed closed")

// LocalFeed reads from an in-process hub.
type LocalFeed struct {
	hub ws.Hub

	mu     sync.Mutex
	sub    *ws.Subscription
	closed bool
}

func NewLocalFeed(hub ws.Hub) *LocalFeed {
	return &LocalFeed{hub: hub}
}

func (f *LocalFeed) subscription(ctx context.Context) (*ws.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	if f.sub != nil {
		return f.sub, nil
	}
	sub, err := f.hub.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	f.sub = sub
	return sub, nil
}

// Next returns the next event. A subscription dropped for falling behind
// is replaced transparently; its first message is a fresh snapshot.
func (f *LocalFeed) Next(ctx context.Context) (session.Event, error) {
	for {
		sub, err := f.subscription(ctx)
		if err != nil {
			return session.Event{}, err
		}

		select {
		case msg, ok := <-sub.Events():
			if ok {
				return msg.Event, nil
			}
			f.mu.Lock()
			if f.sub == sub {
				f.sub = nil
			}
			f.mu.Unlock()
		case <-ctx.Done():
			return session.Event{}, ctx.Err()
		}
	}
}

func (f *LocalFeed) Resync(ctx context.Context) error {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub == nil {
		return nil
	}
	return f.hub.Resync(ctx, sub)
}

func (f *LocalFeed) Rescan(ctx context.Context) error {
	return f.hub.Rescan(ctx)
}

func (f *LocalFeed) Health(ctx context.Context) (ws.HealthPayload, error) {
	return f.hub.Health(ctx)
}

func (f *LocalFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.sub != nil {
		f.hub.Unsubscribe(f.sub)
		f.sub = nil
	}
}
