package roster

import (
	"context"
	"errors"
	"time"

	"github.com/coterie-chat/coterie/internal/api"
	"github.com/coterie-chat/coterie/internal/model"
)

// DefaultPollInterval is the cadence of the roster re-poll between push
// events.
const DefaultPollInterval = 30 * time.Second

// Fetcher is the REST slice the syncer needs.
type Fetcher interface {
	Roster(ctx context.Context, username string) ([]model.RosterEntry, error)
}

// Syncer drives the roster's poll loop: one snapshot on activation, then a
// fixed-interval re-poll that replaces the whole collection. Push events are
// fed in by the roster topic's supervisor via Roster.Apply.
type Syncer struct {
	roster   *Roster
	fetch    Fetcher
	username string
	interval time.Duration

	// onUpdate fires after every successful replace; onError after every
	// failed poll. A failed poll is reported, never retried early, and the
	// loop keeps its cadence. An expired session stops the loop.
	onUpdate func()
	onError  func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// SyncerConfig assembles a Syncer.
type SyncerConfig struct {
	Roster   *Roster
	Fetcher  Fetcher
	Username string
	Interval time.Duration
	OnUpdate func()
	OnError  func(error)
}

// NewSyncer creates a stopped syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Syncer{
		roster:   cfg.Roster,
		fetch:    cfg.Fetcher,
		username: cfg.Username,
		interval: interval,
		onUpdate: cfg.OnUpdate,
		onError:  cfg.OnError,
	}
}

// Start fetches the activation snapshot and begins the re-poll loop.
func (s *Syncer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop halts the poll loop and waits for it to exit. Idempotent.
func (s *Syncer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Syncer) loop(ctx context.Context) {
	defer close(s.done)

	if !s.poll(ctx) {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.poll(ctx) {
				return
			}
		}
	}
}

// poll fetches and replaces once. Returns false when the loop must stop.
func (s *Syncer) poll(ctx context.Context) bool {
	entries, err := s.fetch.Roster(ctx, s.username)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if s.onError != nil {
			s.onError(err)
		}
		// Session expiry is terminal for the loop; the auth collaborator
		// takes over from here.
		return !errors.Is(err, api.ErrUnauthorized)
	}

	s.roster.ReplaceAll(entries)
	if s.onUpdate != nil {
		s.onUpdate()
	}
	return true
}
