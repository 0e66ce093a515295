// Package conn owns the lifecycle and retry policy of the persistent push
// connections, one per topic (a chat, or the roster).
package conn

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/wire"
)

// DefaultReconnectDelay is the base pause before the first reconnect attempt
// after an abnormal close. Consecutive failures back off exponentially with
// jitter, capped at maxReconnectDelay; a successful open resets the sequence.
const DefaultReconnectDelay = time.Second

const maxReconnectDelay = 30 * time.Second

var (
	// ErrNoSession means the token was cleared; the supervisor will not dial
	// or retry with a stale credential.
	ErrNoSession = errors.New("no session token")
	// ErrNotOpen means a send was attempted while the socket is not open.
	ErrNotOpen = errors.New("connection not open")
)

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() string
}

// Config assembles a Supervisor.
type Config struct {
	// Topic is the stream this supervisor owns.
	Topic Topic
	// BaseURL is the websocket root, e.g. ws://host:8000.
	BaseURL string
	// Tokens supplies the connection credential. A cleared token stops all
	// dialing and retrying.
	Tokens TokenSource
	// Dialer opens sockets; defaults to gorilla/websocket.
	Dialer Dialer
	// ReconnectDelay overrides DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// OnEvent receives each decoded inbound frame, in arrival order.
	OnEvent func(wire.Event)
	// OnState observes every state transition. Transitions are delivered in
	// order from a dedicated goroutine, outside the supervisor's lock, so the
	// callback may block or call back into the supervisor without stalling it.
	OnState func(State)
}

// Supervisor is a finite-state machine owning exactly one socket per topic:
// Idle → Connecting → Open → {Closed | Reconnecting → Connecting → ...}.
// A close code in {1000, 1005} or an explicit Close is terminal; any other
// close schedules exactly one reconnect, backed off per backoffDelay. Close is
// idempotent and cancels any pending reconnect timer. Events that resolve
// after closure was requested are suppressed, never delivered.
type Supervisor struct {
	topic   Topic
	baseURL string
	tokens  TokenSource
	dialer  Dialer
	delay   time.Duration
	onEvent func(wire.Event)
	onState func(State)
	log     zerolog.Logger

	mu    sync.Mutex
	state State
	sock  Socket
	timer *time.Timer
	// stateQ holds transitions awaiting delivery to onState; notifyLoop
	// drains it in order off the lock. notifying guards the single loop.
	stateQ    []State
	stateCond *sync.Cond
	notifying bool
	// attempts counts consecutive failed reconnects, driving the backoff.
	attempts int
	// gen invalidates in-flight dials, reads and timers from a previous
	// lifecycle. Bumped by Open and Close.
	gen int
}

// NewSupervisor creates a supervisor in the Idle state.
func NewSupervisor(cfg Config) *Supervisor {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &WebsocketDialer{}
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	s := &Supervisor{
		topic:   cfg.Topic,
		baseURL: cfg.BaseURL,
		tokens:  cfg.Tokens,
		dialer:  dialer,
		delay:   delay,
		onEvent: cfg.OnEvent,
		onState: cfg.OnState,
		log:     logging.Component("conn").With().Str("topic", cfg.Topic.String()).Logger(),
		state:   StateIdle,
	}
	s.stateCond = sync.NewCond(&s.mu)
	return s
}

// State reports the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open starts (or restarts) the connection. A prior non-closed socket is torn
// down first, so at most one socket is ever live for the topic.
func (s *Supervisor) Open() error {
	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	gen := s.gen

	if s.tokens.Token() == "" {
		s.setStateLocked(StateClosed)
		s.mu.Unlock()
		return ErrNoSession
	}

	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	go s.dial(gen)
	return nil
}

// Close tears the connection down for good: the socket is closed, any pending
// reconnect timer is cancelled, and late callbacks are suppressed. Idempotent.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	if s.state != StateClosed {
		s.setStateLocked(StateClosed)
	}
	s.mu.Unlock()
}

// Send writes one outbound frame. Fire-and-forget: there is no per-frame
// acknowledgement; failures surface only as connection-state transitions.
func (s *Supervisor) Send(data []byte) error {
	s.mu.Lock()
	sock := s.sock
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || sock == nil {
		return ErrNotOpen
	}
	return sock.WriteMessage(data)
}

// teardownLocked closes the current socket and cancels a pending reconnect.
func (s *Supervisor) teardownLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.sock != nil {
		_ = s.sock.Close()
		s.sock = nil
	}
}

func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.log.Debug().Str("from", s.state.String()).Str("to", next.String()).Msg("state transition")
	s.state = next
	if s.onState == nil {
		return
	}
	s.stateQ = append(s.stateQ, next)
	if !s.notifying {
		s.notifying = true
		go s.notifyLoop()
	}
	s.stateCond.Signal()
}

// notifyLoop delivers queued transitions to onState one at a time, in order,
// without holding s.mu across the callback. It exits once the supervisor is
// Closed and the queue is drained; a later Open starts a fresh loop.
func (s *Supervisor) notifyLoop() {
	s.mu.Lock()
	for {
		for len(s.stateQ) == 0 {
			if s.state == StateClosed {
				s.notifying = false
				s.mu.Unlock()
				return
			}
			s.stateCond.Wait()
		}
		next := s.stateQ[0]
		s.stateQ = s.stateQ[1:]
		s.mu.Unlock()
		s.onState(next)
		s.mu.Lock()
	}
}

func (s *Supervisor) dial(gen int) {
	token := s.tokens.Token()
	if token == "" {
		s.mu.Lock()
		if gen == s.gen && s.state == StateConnecting {
			s.setStateLocked(StateClosed)
		}
		s.mu.Unlock()
		return
	}

	attempt := uuid.NewString()
	target := s.baseURL + "/ws/chat/" + strconv.FormatInt(s.topic.ChatID(), 10) +
		"?token=" + url.QueryEscape(token)

	sock, err := s.dialer.Dial(context.Background(), target)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateConnecting {
		// Torn down while the handshake was in flight.
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("attempt", attempt).
			Str("url", logging.Redact(target)).Msg("handshake failed")
		s.scheduleReconnectLocked(gen)
		return
	}

	s.sock = sock
	s.attempts = 0
	s.setStateLocked(StateOpen)
	s.log.Info().Str("attempt", attempt).Msg("connected")
	go s.readLoop(gen, sock)
}

func (s *Supervisor) readLoop(gen int, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}

		event, derr := wire.Decode(data)
		if derr != nil {
			// Malformed frame: drop with a diagnostic, keep the connection.
			s.log.Debug().Err(derr).Msg("dropped frame")
			continue
		}

		s.mu.Lock()
		stale := gen != s.gen || s.state != StateOpen
		s.mu.Unlock()
		if stale {
			return
		}
		if s.onEvent != nil {
			s.onEvent(event)
		}
	}
}

func (s *Supervisor) handleDisconnect(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateOpen {
		return
	}

	s.sock = nil
	code := closeCode(err)
	if isNormalClose(code) {
		s.log.Info().Int("code", code).Msg("closed normally")
		s.setStateLocked(StateClosed)
		return
	}

	s.log.Warn().Int("code", code).Err(err).Msg("abnormal close")
	s.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked arms exactly one retry. The delay starts at the
// configured base and doubles per consecutive failure up to maxReconnectDelay,
// jittered so a fleet of clients does not reconnect in lockstep. A cleared
// token short-circuits to Closed instead of retrying with a stale credential.
func (s *Supervisor) scheduleReconnectLocked(gen int) {
	if s.tokens.Token() == "" {
		s.setStateLocked(StateClosed)
		return
	}

	delay := backoffDelay(s.delay, s.attempts)
	s.attempts++
	s.setStateLocked(StateReconnecting)
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if gen != s.gen || s.state != StateReconnecting {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		if s.tokens.Token() == "" {
			s.setStateLocked(StateClosed)
			s.mu.Unlock()
			return
		}
		s.setStateLocked(StateConnecting)
		s.mu.Unlock()
		go s.dial(gen)
	})
}

// backoffDelay computes the pause before the given retry attempt: the base
// doubled per prior failure, capped at maxReconnectDelay, then jittered into
// [delay/2, delay] so it never exceeds the computed window.
func backoffDelay(base time.Duration, attempts int) time.Duration {
	delay := base
	for i := 0; i < attempts && delay < maxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	half := delay / 2
	return half + rand.N(delay-half+1)
}
