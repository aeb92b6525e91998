// Package gateway maintains a durable Discord v9 gateway session per
// endpoint: handshake, heartbeat, resume/reconnect and event decoding.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sparklost/spacebar-bridge/internal/event"
	"github.com/sparklost/spacebar-bridge/shared/backoff"
)

const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

const (
	// GUILD_MESSAGES | DIRECT_MESSAGES.
	identifyIntents = 1536

	defaultHeartbeatMS = 41250
)

// Close codes that allow resuming the session. 4004 (auth failed) is
// terminal.
const (
	closeUnknownError   = 4000
	closeSessionTimeout = 4009
	closeAuthFailed     = 4004
)

type gatewayFrame struct {
	Op int             `json:"op"`
	S  *int64          `json:"s"`
	T  string          `json:"t"`
	D  json.RawMessage `json:"d"`
}

// restAPI is the slice of the REST client the session needs.
type restAPI interface {
	GetGatewayURL(ctx context.Context) (string, error)
}

// Session is one endpoint's gateway connection. The receiver goroutine
// feeds the event buffer; a supervisor goroutine owns the reconnect
// lifecycle. All flag fields are atomics so the relay loop can observe
// them without locking.
type Session struct {
	name       string
	token      string
	compressed bool

	rest   restAPI
	dialer *websocket.Dialer

	mu               sync.Mutex // conn + session identity fields
	conn             *websocket.Conn
	receiverDone     chan struct{}
	gatewayURL       string
	resumeGatewayURL string
	sessionID        string
	myID             string

	writeMu sync.Mutex

	sequence   atomic.Int64
	hbInterval atomic.Int64
	hbAck      atomic.Bool
	ready      atomic.Bool
	running    atomic.Bool
	waiting    atomic.Bool
	resumable  atomic.Bool

	inflater inflater
	buf      buffer

	reconnectCh chan struct{}

	errMu sync.Mutex
	err   error
}

// NewSession builds a session for one endpoint. Compression is enabled
// for Discord and disabled for Spacebar.
func NewSession(name, token string, api restAPI, compressed bool) *Session {
	s := &Session{
		name:       name,
		token:      token,
		compressed: compressed,
		rest:       api,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			// Offer permessage-deflate; independent of the zlib-stream
			// payload compression.
			EnableCompression: true,
		},
		reconnectCh: make(chan struct{}, 1),
	}
	s.sequence.Store(-1)
	s.hbInterval.Store(defaultHeartbeatMS)
	return s
}

// Connect performs the initial handshake and starts the receiver,
// heartbeater and supervisor goroutines. An error here means the
// endpoint is unreachable at startup; the caller exits.
func (s *Session) Connect(ctx context.Context) error {
	url, err := s.rest.GetGatewayURL(ctx)
	if err != nil {
		return fmt.Errorf("%s gateway url: %w", s.name, err)
	}
	s.mu.Lock()
	s.gatewayURL = url
	s.mu.Unlock()

	conn, err := s.dial(ctx, url)
	if err != nil {
		return fmt.Errorf("%s gateway dial: %w", s.name, err)
	}
	if err := s.awaitHello(conn); err != nil {
		conn.Close()
		return fmt.Errorf("%s gateway hello: %w", s.name, err)
	}

	s.running.Store(true)
	s.hbAck.Store(true)
	s.startReceiver(conn)
	go s.heartbeater()
	go s.supervise(ctx)

	if err := s.identify(); err != nil {
		return fmt.Errorf("%s gateway identify: %w", s.name, err)
	}
	return nil
}

func (s *Session) dial(ctx context.Context, base string) (*websocket.Conn, error) {
	u := base + "/?v=9&encoding=json"
	if s.compressed {
		u += "&compress=zlib-stream"
	}
	slog.Info("gateway: connecting", "endpoint", s.name, "url", u)

	header := http.Header{}
	header.Set("User-Agent", "endcord")

	conn, resp, err := s.dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			slog.Error("gateway: dial failed", "endpoint", s.name, "status", resp.StatusCode, "error", err)
		} else {
			slog.Error("gateway: dial failed", "endpoint", s.name, "error", err)
		}
		return nil, err
	}
	return conn, nil
}

// awaitHello consumes the HELLO frame and records the heartbeat interval.
func (s *Session) awaitHello(conn *websocket.Conn) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	payload, err := s.decompress(data)
	if err != nil {
		return err
	}
	var frame gatewayFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	if frame.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", frame.Op)
	}
	interval := int64(defaultHeartbeatMS)
	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(frame.D, &hello); err == nil && hello.HeartbeatInterval > 0 {
		interval = hello.HeartbeatInterval
	}
	s.hbInterval.Store(interval)
	return nil
}

func (s *Session) identify() error {
	return s.send(map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token": s.token,
			"properties": map[string]any{
				"os":      runtime.GOOS,
				"browser": "endcord",
				"device":  "endcord",
			},
			"intents": identifyIntents,
			"presence": map[string]any{
				"status":     "online",
				"since":      0,
				"activities": []any{},
				"afk":        false,
			},
		},
	})
}

// UpdatePresence sends a presence update (op 3) with an optional custom
// status activity. The emoji payload is forwarded verbatim.
func (s *Session) UpdatePresence(status, customStatus string, emoji json.RawMessage) error {
	activities := []any{}
	if customStatus != "" {
		activity := map[string]any{
			"name":  "Custom Status",
			"type":  4,
			"state": customStatus,
		}
		if len(emoji) > 0 {
			activity["emoji"] = emoji
		}
		activities = append(activities, activity)
	}
	return s.send(map[string]any{
		"op": opPresenceUpdate,
		"d": map[string]any{
			"since":      0,
			"activities": activities,
			"status":     status,
			"afk":        false,
		},
	})
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%s gateway not connected", s.name)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

func (s *Session) decompress(frame []byte) ([]byte, error) {
	if !s.compressed {
		return frame, nil
	}
	return s.inflater.decompress(frame)
}

func (s *Session) startReceiver(conn *websocket.Conn) {
	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.receiverDone = done
	s.mu.Unlock()
	go s.receiver(conn, done)
}

func (s *Session) receiver(conn *websocket.Conn, done chan struct{}) {
	slog.Info("gateway: receiver started", "endpoint", s.name)
	for s.running.Load() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.classifyClose(err)
			break
		}
		payload, err := s.decompress(data)
		if err != nil {
			slog.Error("gateway: decompress failed", "endpoint", s.name, "error", err)
			s.resumable.Store(true)
			break
		}
		var frame gatewayFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			slog.Debug("gateway: undecodable frame", "endpoint", s.name, "error", err)
			continue
		}
		if !s.handleFrame(&frame) {
			break
		}
	}
	slog.Info("gateway: receiver stopped", "endpoint", s.name)
	if s.running.Load() {
		s.requestReconnect()
	}
	close(done)
}

func (s *Session) classifyClose(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		slog.Warn("gateway: connection closed", "endpoint", s.name, "code", closeErr.Code, "reason", closeErr.Text)
		switch closeErr.Code {
		case closeUnknownError, closeSessionTimeout:
			s.resumable.Store(true)
		case closeAuthFailed:
			s.running.Store(false)
			s.setErr(fmt.Errorf("%s token is invalid", s.name))
		}
		return
	}
	// Transport errors without a close frame count as resumable drops.
	slog.Warn("gateway: connection lost", "endpoint", s.name, "error", err)
	s.resumable.Store(true)
}

// handleFrame dispatches one decoded frame. Returns false when the
// receive loop must break and reconnect.
func (s *Session) handleFrame(frame *gatewayFrame) bool {
	switch frame.Op {
	case opHeartbeatAck:
		s.hbAck.Store(true)
	case opHeartbeat:
		s.sendHeartbeat()
	case opHello:
		var hello struct {
			HeartbeatInterval int64 `json:"heartbeat_interval"`
		}
		if err := json.Unmarshal(frame.D, &hello); err == nil && hello.HeartbeatInterval > 0 {
			s.hbInterval.Store(hello.HeartbeatInterval)
		}
	case opDispatch:
		if frame.S != nil {
			s.sequence.Store(*frame.S)
		}
		s.handleDispatch(frame.T, frame.D)
	case opReconnect:
		slog.Info("gateway: reconnect requested by server", "endpoint", s.name)
		s.resumable.Store(true)
		return false
	case opInvalidSession:
		slog.Warn("gateway: session invalidated", "endpoint", s.name)
		return false
	}
	return true
}

func (s *Session) handleDispatch(t string, d json.RawMessage) {
	if t == "READY" {
		var ready readyPayload
		if err := json.Unmarshal(d, &ready); err != nil {
			slog.Error("gateway: bad READY payload", "endpoint", s.name, "error", err)
			return
		}
		s.mu.Lock()
		s.resumeGatewayURL = ready.ResumeGatewayURL
		s.sessionID = ready.SessionID
		s.myID = ready.User.ID
		s.mu.Unlock()
		s.ready.Store(true)
		slog.Info("gateway: ready", "endpoint", s.name, "session_id", ready.SessionID, "user_id", ready.User.ID)
		return
	}
	events, err := normalizeDispatch(t, d)
	if err != nil {
		slog.Error("gateway: bad dispatch payload", "endpoint", s.name, "type", t, "error", err)
		return
	}
	for _, e := range events {
		s.buf.push(e)
	}
}

func (s *Session) heartbeater() {
	slog.Info("gateway: heartbeater started", "endpoint", s.name, "interval_ms", s.hbInterval.Load())
	interval := s.jitteredInterval()
	last := time.Now()
	for s.running.Load() {
		time.Sleep(time.Second)
		if s.waiting.Load() {
			last = time.Now()
			continue
		}
		if time.Since(last) < interval {
			continue
		}
		if !s.hbAck.Load() {
			slog.Warn("gateway: heartbeat ack missed", "endpoint", s.name)
			s.resumable.Store(true)
			s.requestReconnect()
			last = time.Now()
			continue
		}
		s.hbAck.Store(false)
		s.sendHeartbeat()
		last = time.Now()
		interval = s.jitteredInterval()
	}
	slog.Info("gateway: heartbeater stopped", "endpoint", s.name)
}

// jitteredInterval spreads heartbeats uniformly over [0.2, 0.8] of the
// server interval.
func (s *Session) jitteredInterval() time.Duration {
	jitter := 0.8 - 0.6*rand.Float64()
	return time.Duration(float64(s.hbInterval.Load())*jitter) * time.Millisecond
}

func (s *Session) sendHeartbeat() {
	var seq any
	if n := s.sequence.Load(); n >= 0 {
		seq = n
	}
	if err := s.send(map[string]any{"op": opHeartbeat, "d": seq}); err != nil {
		slog.Warn("gateway: heartbeat send failed", "endpoint", s.name, "error", err)
		s.resumable.Store(true)
		s.requestReconnect()
	}
}

func (s *Session) requestReconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// supervise owns the reconnect lifecycle: it is the only goroutine that
// tears down and re-establishes the connection.
func (s *Session) supervise(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.reconnectCh:
		}
		if !s.running.Load() {
			return
		}
		s.reconnect(ctx)
	}
}

func (s *Session) reconnect(ctx context.Context) {
	slog.Info("gateway: reconnecting", "endpoint", s.name)
	s.teardown()

	// Duplicate requests raised while tearing down collapse into the
	// one reconnect in flight.
	select {
	case <-s.reconnectCh:
	default:
	}

	if s.resumable.Swap(false) && s.resume(ctx) {
		return
	}

	err := backoff.RetryWithCallback(ctx, backoff.Quick,
		func(ctx context.Context, attempt int) error {
			return s.identifyFresh(ctx)
		},
		func(attempt int, err error, delay time.Duration) {
			slog.Warn("gateway: identify failed", "endpoint", s.name, "attempt", attempt, "retry_in", delay, "error", err)
		})
	if err == nil {
		s.waiting.Store(false)
		return
	}
	if ctx.Err() != nil || !s.running.Load() {
		return
	}

	s.waiting.Store(true)
	slog.Warn("gateway: offline, retrying every 5s", "endpoint", s.name)
	for s.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		if err := s.identifyFresh(ctx); err == nil {
			s.waiting.Store(false)
			slog.Info("gateway: back online", "endpoint", s.name)
			return
		}
	}
}

// teardown closes the connection, waits for the receiver to exit and
// resets per-connection stream state.
func (s *Session) teardown() {
	s.ready.Store(false)
	s.mu.Lock()
	conn := s.conn
	done := s.receiverDone
	s.conn = nil
	s.receiverDone = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	s.inflater.reset()
}

// resume re-attaches to the existing session. Any failure falls through
// to a fresh identify.
func (s *Session) resume(ctx context.Context) bool {
	s.mu.Lock()
	url := s.resumeGatewayURL
	if url == "" {
		url = s.gatewayURL
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	slog.Info("gateway: resuming", "endpoint", s.name, "session_id", sessionID)
	conn, err := s.dial(ctx, url)
	if err != nil {
		return false
	}
	if err := s.awaitHello(conn); err != nil {
		conn.Close()
		return false
	}
	err = conn.WriteJSON(map[string]any{
		"op": opResume,
		"d": map[string]any{
			"token":      s.token,
			"session_id": sessionID,
			"seq":        s.sequence.Load(),
		},
	})
	if err != nil {
		conn.Close()
		return false
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return false
	}
	payload, err := s.decompress(data)
	if err != nil {
		conn.Close()
		return false
	}
	var frame gatewayFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Op == opInvalidSession {
		conn.Close()
		return false
	}

	s.startReceiver(conn)
	s.handleFrame(&frame)
	s.hbAck.Store(true)
	s.ready.Store(true)
	slog.Info("gateway: resumed", "endpoint", s.name, "session_id", sessionID)
	return true
}

// identifyFresh opens a new connection and starts a new session.
func (s *Session) identifyFresh(ctx context.Context) error {
	s.inflater.reset()
	s.mu.Lock()
	url := s.gatewayURL
	s.mu.Unlock()

	conn, err := s.dial(ctx, url)
	if err != nil {
		return err
	}
	if err := s.awaitHello(conn); err != nil {
		conn.Close()
		return err
	}
	s.sequence.Store(-1)
	s.startReceiver(conn)
	s.hbAck.Store(true)
	return s.identify()
}

// PollEvent returns the oldest buffered event, if any. Never blocks.
func (s *Session) PollEvent() (event.Event, bool) {
	return s.buf.poll()
}

// Ready reports whether the session has completed its handshake.
func (s *Session) Ready() bool { return s.ready.Load() }

// Running reports whether the session is still alive.
func (s *Session) Running() bool { return s.running.Load() }

// Name is the endpoint's human-readable label.
func (s *Session) Name() string { return s.name }

// MyID is the bot's own user id on this endpoint, known after READY.
func (s *Session) MyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.myID
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// Err returns the fatal session error, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops the session. Receiver and heartbeater exit within one tick.
func (s *Session) Close() {
	if !s.running.Swap(false) {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.requestReconnect()
	slog.Info("gateway: session closed", "endpoint", s.name)
}
