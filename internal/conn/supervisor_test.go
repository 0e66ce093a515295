package conn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/coterie-chat/coterie/internal/wire"
)

const testDelay = 50 * time.Millisecond

type fakeTokens struct {
	mu    sync.Mutex
	token string
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

type readResult struct {
	data []byte
	err  error
}

type fakeSocket struct {
	reads  chan readResult
	writes chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		reads:  make(chan readResult, 16),
		writes: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case r := <-f.reads:
		return r.data, r.err
	case <-f.done:
		return nil, errors.New("use of closed connection")
	}
}

func (f *fakeSocket) WriteMessage(data []byte) error {
	f.writes <- data
	return nil
}

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSocket) deliver(frame string) {
	f.reads <- readResult{data: []byte(frame)}
}

func (f *fakeSocket) fail(err error) {
	f.reads <- readResult{err: err}
}

// fakeDialer hands out a fresh socket per dial, or a scripted error.
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	errs    []error
	urls    []string
}

func (f *fakeDialer) Dial(_ context.Context, url string) (Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	sock := newFakeSocket()
	f.sockets = append(f.sockets, sock)
	return sock, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func (f *fakeDialer) socket(i int) *fakeSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sockets) {
		return nil
	}
	return f.sockets[i]
}

type eventSink struct {
	mu     sync.Mutex
	events []wire.Event
	states []State
}

func (e *eventSink) onEvent(event wire.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventSink) onState(state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, state)
}

func (e *eventSink) eventCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *eventSink) stateSeq() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, len(e.states))
	copy(out, e.states)
	return out
}

func newTestSupervisor(t *testing.T, dialer *fakeDialer, tokens *fakeTokens) (*Supervisor, *eventSink) {
	t.Helper()
	sink := &eventSink{}
	sup := NewSupervisor(Config{
		Topic:          ChatTopic(7),
		BaseURL:        "ws://example.test",
		Tokens:         tokens,
		Dialer:         dialer,
		ReconnectDelay: testDelay,
		OnEvent:        sink.onEvent,
		OnState:        sink.onState,
	})
	t.Cleanup(sup.Close)
	return sup, sink
}

func waitState(t *testing.T, sup *Supervisor, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return sup.State() == want },
		time.Second, time.Millisecond, "waiting for state %s", want)
}

func TestOpenConnectsAndDeliversEventsInOrder(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, sink := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	sock := dialer.socket(0)
	sock.deliver(`{"type":"message","username":"ana","data":{"chat_id":7,"content":"one","message_id":1}}`)
	sock.deliver(`{"type":"message","username":"ana","data":{"chat_id":7,"content":"two","message_id":2}}`)

	require.Eventually(t, func() bool { return sink.eventCount() == 2 }, time.Second, time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, int64(1), sink.events[0].(wire.MessageEvent).Message.ID)
	require.Equal(t, int64(2), sink.events[1].(wire.MessageEvent).Message.ID)
}

func TestDialURLCarriesTopicAndToken(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "se cret"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	require.Equal(t, "ws://example.test/ws/chat/7?token=se+cret", dialer.urls[0])
}

func TestAbnormalCloseReconnectsAfterDelay(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, sink := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	dialer.socket(0).fail(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, time.Second, time.Millisecond)
	waitState(t, sup, StateOpen)

	require.Eventually(t, func() bool {
		seq := sink.stateSeq()
		return len(seq) > 0 && seq[len(seq)-1] == StateOpen
	}, time.Second, time.Millisecond)
	require.Contains(t, sink.stateSeq(), StateReconnecting)
}

func TestNormalCloseIsTerminal(t *testing.T) {
	for _, code := range []int{websocket.CloseNormalClosure, websocket.CloseNoStatusReceived} {
		dialer := &fakeDialer{}
		tokens := &fakeTokens{token: "tok"}
		sup, _ := newTestSupervisor(t, dialer, tokens)

		require.NoError(t, sup.Open())
		waitState(t, sup, StateOpen)

		dialer.socket(0).fail(&websocket.CloseError{Code: code})
		waitState(t, sup, StateClosed)

		time.Sleep(3 * testDelay)
		require.Equal(t, 1, dialer.dialCount(), "code %d must not reconnect", code)
	}
}

func TestTransportErrorCountsAsAbnormal(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	dialer.socket(0).fail(errors.New("connection reset by peer"))
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, time.Second, time.Millisecond)
}

func TestHandshakeFailureRetries(t *testing.T) {
	dialer := &fakeDialer{errs: []error{errors.New("connection refused")}}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, time.Second, time.Millisecond)
	waitState(t, sup, StateOpen)
}

func TestOpenWithoutTokenFailsFast(t *testing.T) {
	dialer := &fakeDialer{}
	sup, _ := newTestSupervisor(t, dialer, &fakeTokens{})

	require.ErrorIs(t, sup.Open(), ErrNoSession)
	require.Equal(t, StateClosed, sup.State())
	require.Equal(t, 0, dialer.dialCount())
}

func TestClearedTokenStopsRetrying(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	tokens.set("")
	dialer.socket(0).fail(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})

	waitState(t, sup, StateClosed)
	time.Sleep(3 * testDelay)
	require.Equal(t, 1, dialer.dialCount())
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	dialer.socket(0).fail(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	waitState(t, sup, StateReconnecting)

	sup.Close()
	sup.Close() // idempotent

	time.Sleep(3 * testDelay)
	require.Equal(t, 1, dialer.dialCount())
	require.Equal(t, StateClosed, sup.State())
}

func TestReopenTearsDownPriorSocket(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)
	require.Equal(t, 2, dialer.dialCount())

	select {
	case <-dialer.socket(0).done:
	case <-time.After(time.Second):
		t.Fatal("first socket was not closed on reopen")
	}
}

func TestEventsAfterCloseAreSuppressed(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, sink := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	sock := dialer.socket(0)
	sup.Close()
	sock.deliver(`{"type":"message","username":"ana","data":{"chat_id":7,"content":"late","message_id":9}}`)

	time.Sleep(3 * testDelay)
	require.Zero(t, sink.eventCount())
}

func TestMalformedFramesAreDroppedConnectionStays(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, sink := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	sock := dialer.socket(0)
	sock.deliver(`{not json`)
	sock.deliver(`{"type":"presence"}`)
	sock.deliver(`{"type":"message","username":"ana","data":{"chat_id":7,"content":"ok","message_id":1}}`)

	require.Eventually(t, func() bool { return sink.eventCount() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, StateOpen, sup.State())
}

func TestSendRequiresOpenState(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.ErrorIs(t, sup.Send([]byte("x")), ErrNotOpen)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)
	require.NoError(t, sup.Send([]byte(`{"type":"message","content":"hi"}`)))

	select {
	case data := <-dialer.socket(0).writes:
		require.JSONEq(t, `{"type":"message","content":"hi"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("frame was not written")
	}
}

func TestBlockedStateCallbackDoesNotStallSupervisor(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []State
	sup := NewSupervisor(Config{
		Topic:          ChatTopic(7),
		BaseURL:        "ws://example.test",
		Tokens:         tokens,
		Dialer:         dialer,
		ReconnectDelay: testDelay,
		OnState: func(state State) {
			mu.Lock()
			seen = append(seen, state)
			mu.Unlock()
			<-release
		},
	})

	require.NoError(t, sup.Open())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, time.Second, time.Millisecond)

	// The first callback is stuck. The state machine must keep working.
	waitState(t, sup, StateOpen)

	done := make(chan struct{})
	go func() {
		sup.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a stuck state callback")
	}

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == StateClosed
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, StateConnecting, seen[0])
}

func TestStateCallbackMayReenterSupervisor(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}

	var mu sync.Mutex
	var observed []State
	var sup *Supervisor
	sup = NewSupervisor(Config{
		Topic:          ChatTopic(7),
		BaseURL:        "ws://example.test",
		Tokens:         tokens,
		Dialer:         dialer,
		ReconnectDelay: testDelay,
		OnState: func(State) {
			mu.Lock()
			observed = append(observed, sup.State())
			mu.Unlock()
		},
	})
	t.Cleanup(sup.Close)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) >= 2
	}, time.Second, time.Millisecond)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	for attempts, want := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	} {
		for i := 0; i < 50; i++ {
			got := backoffDelay(base, attempts)
			require.GreaterOrEqual(t, got, want/2, "attempt %d", attempts)
			require.LessOrEqual(t, got, want, "attempt %d", attempts)
		}
	}

	// Far past the doubling horizon the delay stays pinned at the cap.
	got := backoffDelay(base, 40)
	require.GreaterOrEqual(t, got, maxReconnectDelay/2)
	require.LessOrEqual(t, got, maxReconnectDelay)
}

func TestBackoffResetsAfterSuccessfulOpen(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok"}
	sup, _ := newTestSupervisor(t, dialer, tokens)

	require.NoError(t, sup.Open())
	waitState(t, sup, StateOpen)

	dialer.socket(0).fail(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	waitState(t, sup, StateOpen)

	sup.mu.Lock()
	attempts := sup.attempts
	sup.mu.Unlock()
	require.Zero(t, attempts)
}
