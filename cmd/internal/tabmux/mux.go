// Package tabmux multiplexes one upstream WebSocket per tenant across many
// attached ports.
//
// It is the embeddable counterpart of the browser shared-worker: N views
// (tabs) attach as ports, the mux keeps at most one live socket per tenant
// schema, fans every inbound frame out to all attached ports, and accepts
// outbound sends from any of them. When the socket drops it reconnects after
// a fixed delay, but only while at least one port is still attached, so
// abandoned tenants never cause reconnect storms.
package tabmux

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "nepdora/contracts/tabmux/v1"
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultDialTimeout    = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

var (
	// ErrClosed is returned once the mux has been shut down.
	ErrClosed = errors.New("tabmux: closed")
	// ErrNotConnected is returned by Send when the tenant socket is not open.
	ErrNotConnected = errors.New("tabmux: socket not connected")
)

// DialFunc opens the upstream socket. Injectable so tests can stub transport
// failures without a server.
type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

func defaultDial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	return conn, err
}

// Config tunes the mux.
type Config struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

type socketState uint8

const (
	stateIdle socketState = iota
	stateDialing
	stateOpen
)

// Mux owns per-tenant socket state and port membership.
type Mux struct {
	log  *slog.Logger
	dial DialFunc
	cfg  Config

	mu      sync.Mutex
	tenants map[string]*tenant
	closed  bool
}

type tenant struct {
	schema  string
	baseURL string

	ports map[Port]struct{}

	state  socketState
	conn   *websocket.Conn
	cancel context.CancelFunc
	gen    uint64
}

// New constructs a Mux. A nil dial uses the real websocket dialer.
func New(log *slog.Logger, dial DialFunc, cfg Config) *Mux {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if dial == nil {
		dial = defaultDial
	}
	return &Mux{
		log:     log,
		dial:    dial,
		cfg:     cfg.withDefaults(),
		tenants: make(map[string]*tenant),
	}
}

// Connect registers port under the tenant schema. If no live socket exists
// one is opened; if one is already open, the new port alone gets an immediate
// CONNECTED ack without reopening anything.
func (m *Mux) Connect(port Port, schema, wsBaseURL string) error {
	if port == nil || schema == "" || wsBaseURL == "" {
		return errors.New("tabmux: port, schema and wsBaseUrl are required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	t := m.tenants[schema]
	if t == nil {
		t = &tenant{
			schema:  schema,
			baseURL: wsBaseURL,
			ports:   make(map[Port]struct{}),
		}
		m.tenants[schema] = t
	}
	t.ports[port] = struct{}{}

	alreadyOpen := t.state == stateOpen
	if !alreadyOpen {
		m.ensureSocketLocked(t)
	}
	m.mu.Unlock()

	if alreadyOpen {
		if err := port.Post(v1.Frame{Type: v1.TypeConnected, SchemaName: schema}); err != nil {
			m.dropPort(schema, port, err)
		}
	}
	return nil
}

// Send forwards message verbatim over the tenant's socket if and only if it
// is open; otherwise the requesting port alone receives an ERROR frame.
func (m *Mux) Send(port Port, schema string, message json.RawMessage) error {
	m.mu.Lock()
	t := m.tenants[schema]
	if t == nil || t.state != stateOpen || t.conn == nil {
		m.mu.Unlock()
		if port != nil {
			_ = port.Post(v1.Frame{Type: v1.TypeError, SchemaName: schema, Error: "socket not connected"})
		}
		return ErrNotConnected
	}
	conn := t.conn
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, message); err != nil {
		if port != nil {
			_ = port.Post(v1.Frame{Type: v1.TypeError, SchemaName: schema, Error: err.Error()})
		}
		return err
	}
	return nil
}

// Disconnect detaches port from the tenant. When the last port detaches, the
// socket is closed and all tenant state is discarded.
func (m *Mux) Disconnect(schema string, port Port) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenants[schema]
	if t == nil {
		return
	}
	delete(t.ports, port)
	if len(t.ports) == 0 {
		m.teardownTenantLocked(t)
	}
}

// PortCount reports attached ports for a tenant (0 for unknown tenants).
func (m *Mux) PortCount(schema string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.tenants[schema]; t != nil {
		return len(t.ports)
	}
	return 0
}

// Connected reports whether the tenant's upstream socket is open.
func (m *Mux) Connected(schema string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenants[schema]
	return t != nil && t.state == stateOpen
}

// Close shuts down every tenant socket and rejects further connects.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, t := range m.tenants {
		m.teardownTenantLocked(t)
	}
}

// ---- socket lifecycle ----

// ensureSocketLocked starts a dial unless one is already in flight or open.
func (m *Mux) ensureSocketLocked(t *tenant) {
	if t.state != stateIdle {
		return
	}
	t.state = stateDialing
	t.gen++
	gen := t.gen

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	go m.runSocket(ctx, t.schema, gen)
}

func (m *Mux) runSocket(ctx context.Context, schema string, gen uint64) {
	m.mu.Lock()
	t := m.tenants[schema]
	if t == nil || t.gen != gen {
		m.mu.Unlock()
		return
	}
	url := v1.SocketURL(t.baseURL, schema)
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	conn, err := m.dial(dialCtx, url)
	cancel()

	m.mu.Lock()
	t = m.tenants[schema]
	if t == nil || t.gen != gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "stale")
		}
		return
	}

	if err != nil {
		t.state = stateIdle
		m.scheduleReconnectLocked(t)
		m.mu.Unlock()

		m.log.Warn("tabmux.dial.fail", "schema", schema, "err", err)
		m.broadcast(schema, v1.Frame{Type: v1.TypeError, SchemaName: schema, Error: err.Error()})
		return
	}

	t.conn = conn
	t.state = stateOpen
	m.mu.Unlock()

	m.log.Info("tabmux.socket.open", "schema", schema)
	m.broadcast(schema, v1.Frame{Type: v1.TypeConnected, SchemaName: schema})

	for {
		_, data, rerr := conn.Read(ctx)
		if rerr != nil {
			break
		}
		m.broadcast(schema, v1.Frame{Type: v1.TypeMessage, SchemaName: schema, Data: data})
	}

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	m.mu.Lock()
	t = m.tenants[schema]
	if t == nil || t.gen != gen {
		m.mu.Unlock()
		return
	}
	t.conn = nil
	t.state = stateIdle
	m.scheduleReconnectLocked(t)
	m.mu.Unlock()

	m.log.Info("tabmux.socket.closed", "schema", schema)
	m.broadcast(schema, v1.Frame{Type: v1.TypeDisconnected, SchemaName: schema})
}

// scheduleReconnectLocked arms the fixed-delay reconnect, but only while at
// least one port is still attached.
func (m *Mux) scheduleReconnectLocked(t *tenant) {
	if len(t.ports) == 0 || m.closed {
		return
	}
	schema := t.schema
	time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return
		}
		t2 := m.tenants[schema]
		if t2 == nil || len(t2.ports) == 0 {
			return
		}
		m.ensureSocketLocked(t2)
	})
}

func (m *Mux) teardownTenantLocked(t *tenant) {
	t.gen++ // invalidate in-flight socket goroutines and timers
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusNormalClosure, "last port detached")
		t.conn = nil
	}
	t.state = stateIdle
	delete(m.tenants, t.schema)
}

// broadcast posts a frame to every attached port. A port that fails to accept
// is dropped from the set so one dead port never breaks delivery to the rest.
func (m *Mux) broadcast(schema string, frame v1.Frame) {
	m.mu.Lock()
	t := m.tenants[schema]
	if t == nil {
		m.mu.Unlock()
		return
	}
	snapshot := make([]Port, 0, len(t.ports))
	for p := range t.ports {
		snapshot = append(snapshot, p)
	}
	m.mu.Unlock()

	for _, p := range snapshot {
		if err := p.Post(frame); err != nil {
			m.dropPort(schema, p, err)
		}
	}
}

func (m *Mux) dropPort(schema string, port Port, cause error) {
	m.log.Warn("tabmux.port.drop", "schema", schema, "err", cause)

	m.mu.Lock()
	t := m.tenants[schema]
	if t == nil {
		m.mu.Unlock()
		return
	}
	delete(t.ports, port)
	if len(t.ports) == 0 {
		m.teardownTenantLocked(t)
	}
	m.mu.Unlock()
}
