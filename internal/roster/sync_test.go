package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coterie-chat/coterie/internal/api"
	"github.com/coterie-chat/coterie/internal/model"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

type fetchResult struct {
	entries []model.RosterEntry
	err     error
}

func (f *scriptedFetcher) Roster(_ context.Context, _ string) ([]model.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res.entries, res.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSyncerFetchesImmediatelyOnStart(t *testing.T) {
	r := New("ana")
	fetcher := &scriptedFetcher{results: []fetchResult{
		{entries: []model.RosterEntry{entry(1, "a")}},
	}}

	var updates sync.WaitGroup
	updates.Add(1)
	var once sync.Once
	s := NewSyncer(SyncerConfig{
		Roster:   r,
		Fetcher:  fetcher,
		Username: "ana",
		Interval: time.Hour,
		OnUpdate: func() { once.Do(updates.Done) },
	})
	s.Start(context.Background())
	defer s.Stop()

	updates.Wait()
	require.Equal(t, 1, r.Len())
}

func TestSyncerKeepsCadenceAcrossFailures(t *testing.T) {
	r := New("ana")
	fetcher := &scriptedFetcher{results: []fetchResult{
		{err: errors.New("gateway timeout")},
		{entries: []model.RosterEntry{entry(1, "a")}},
	}}

	errs := make(chan error, 8)
	s := NewSyncer(SyncerConfig{
		Roster:   r,
		Fetcher:  fetcher,
		Username: "ana",
		Interval: 5 * time.Millisecond,
		OnError:  func(err error) { errs <- err },
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case err := <-errs:
		require.ErrorContains(t, err, "gateway timeout")
	case <-time.After(time.Second):
		t.Fatal("poll failure was not reported")
	}

	// The loop keeps polling after a transient failure.
	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)
}

func TestSyncerStopsOnExpiredSession(t *testing.T) {
	r := New("ana")
	fetcher := &scriptedFetcher{results: []fetchResult{{err: api.ErrUnauthorized}}}

	s := NewSyncer(SyncerConfig{
		Roster:   r,
		Fetcher:  fetcher,
		Username: "ana",
		Interval: time.Millisecond,
		OnError:  func(error) {},
	})
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, fetcher.callCount())
}

func TestSyncerStopIsIdempotent(t *testing.T) {
	s := NewSyncer(SyncerConfig{
		Roster:   New("ana"),
		Fetcher:  &scriptedFetcher{},
		Username: "ana",
		Interval: time.Hour,
	})
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
