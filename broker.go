package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"throttlerun/broker/internal/config"
	"throttlerun/broker/internal/httpapi"
	"throttlerun/broker/internal/input"
	"throttlerun/broker/internal/logging"
	"throttlerun/broker/internal/sim"
	"throttlerun/broker/internal/wire"
)

const (
	// intentMaxAge bounds how old a captured intent may be before the gate
	// discards it as stale.
	intentMaxAge = 250 * time.Millisecond
	// intentMinInterval bounds how tightly a client may pack intents.
	intentMinInterval = 5 * time.Millisecond
)

// Client is one websocket connection with its negotiated codec and game session.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	codec   wire.Compressor
	binary  bool
	session *session

	mu       sync.Mutex
	throttle int32
}

func (c *Client) storeThrottle(throttle int32) {
	c.mu.Lock()
	c.throttle = throttle
	c.mu.Unlock()
}

func (c *Client) latestThrottle() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttle
}

// Broker owns the client registry and drives every session from a single
// authoritative tick loop.
type Broker struct {
	cfg       *config.Config
	log       *logging.Logger
	gate      *input.Gate
	validator *input.Validator
	codecs    *wire.Registry
	upgrader  websocket.Upgrader
	started   time.Time
	monitor   *tickMonitor

	mu      sync.Mutex
	clients map[*Client]bool
	nextID  uint64

	startupMu  sync.Mutex
	startupErr error

	statsMu       sync.Mutex
	ticks         uint64
	framesSent    uint64
	framesByCodec map[string]uint64
	wins          uint64
	losses        uint64
}

// NewBroker wires the gate, validator, and codec registry around the supplied
// configuration.
func NewBroker(cfg *config.Config, logger *logging.Logger) (*Broker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("broker config must be provided")
	}
	if logger == nil {
		logger = logging.L()
	}
	codecs, err := wire.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("build codec registry: %w", err)
	}
	b := &Broker{
		cfg:           cfg,
		log:           logger,
		gate:          input.NewGate(input.Config{MaxAge: intentMaxAge, MinInterval: intentMinInterval}, logger),
		validator:     input.NewValidator(input.DefaultThrottleConstraints, logger),
		codecs:        codecs,
		started:       time.Now(),
		monitor:       &tickMonitor{},
		clients:       make(map[*Client]bool),
		framesByCodec: make(map[string]uint64),
	}
	b.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return b.originAllowed(r.Header.Get("Origin")) },
	}
	return b, nil
}

// originAllowed permits any origin when no allowlist is configured.
func (b *Broker) originAllowed(origin string) bool {
	if len(b.cfg.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range b.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection, negotiates a codec via the "codec" query
// parameter, and starts the per-client session.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	if b.cfg.MaxClients > 0 && b.SnapshotClientCount() >= b.cfg.MaxClients {
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	sess, err := newSession(b.cfg)
	if err != nil {
		b.log.Error("session setup failed", logging.Error(err))
		conn.Close()
		return
	}

	requested := r.URL.Query().Get("codec")
	codec := b.codecs.Lookup(requested)
	if requested != "" && requested != codec.Name() {
		b.log.Debug("unknown codec requested, using identity", logging.String("requested", requested))
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		id:      fmt.Sprintf("conn-%d", b.nextID),
		conn:    conn,
		send:    make(chan []byte, 64),
		codec:   codec,
		binary:  codec.Name() != "identity",
		session: sess,
	}
	b.clients[client] = true
	b.mu.Unlock()

	b.log.Info("client connected",
		logging.String("client_id", client.id),
		logging.String("codec", codec.Name()),
		logging.String("remote_addr", r.RemoteAddr))

	go b.readLoop(client)
	go b.writeLoop(client)
}

func (b *Broker) readLoop(client *Client) {
	defer func() {
		b.unregister(client)
		client.conn.Close()
	}()
	client.conn.SetReadLimit(b.cfg.MaxPayloadBytes)
	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			b.log.Debug("read loop ended", logging.String("client_id", client.id), logging.Error(err))
			return
		}
		if disconnect := b.handleIntent(client, msg); disconnect {
			b.log.Warn("disconnecting abusive client", logging.String("client_id", client.id))
			return
		}
	}
}

func (b *Broker) writeLoop(client *Client) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	messageType := websocket.TextMessage
	if client.binary {
		messageType = websocket.BinaryMessage
	}
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = client.conn.WriteMessage(messageType, msg)
		case <-ticker.C:
			_ = client.conn.WriteMessage(websocket.PingMessage, []byte{})
		}
	}
}

// handleIntent runs one inbound payload through decode, the freshness gate,
// and the throttle validator. The returned flag requests a disconnect.
func (b *Broker) handleIntent(client *Client, raw []byte) bool {
	payload, err := decodeIntentPayload(raw)
	if err != nil {
		b.log.Debug("intent decode failed", logging.String("client_id", client.id), logging.Error(err))
		return false
	}
	if err := validateIntentPayload(payload); err != nil {
		b.log.Debug("intent invalid", logging.String("client_id", client.id), logging.Error(err))
		return false
	}

	decision := b.gate.Evaluate(input.Frame{
		ClientID:   client.id,
		SequenceID: payload.SequenceID,
		SentAt:     payload.SentAt(),
	})
	if !decision.Accepted {
		return false
	}

	verdict := b.validator.Validate(client.id, payload.Throttle)
	if !verdict.Accepted {
		return verdict.Disconnect
	}
	b.validator.Commit(client.id, payload.Throttle)
	client.storeThrottle(payload.Throttle)
	return false
}

func (b *Broker) unregister(client *Client) {
	b.mu.Lock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.send)
	}
	b.mu.Unlock()
	b.gate.Forget(client.id)
	b.validator.Forget(client.id)
}

// Run drives the authoritative tick loop until the context is cancelled.
func (b *Broker) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tickOnce()
		}
	}
}

// tickOnce advances every session by one tick and queues the resulting frame
// for its owning client. Slow clients that cannot drain their send buffer are
// dropped rather than allowed to stall the loop.
func (b *Broker) tickOnce() {
	start := time.Now()
	defer func() { b.monitor.observe(time.Since(start)) }()

	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.Unlock()

	b.statsMu.Lock()
	b.ticks++
	b.statsMu.Unlock()

	for _, client := range clients {
		client.session.setThrottle(client.latestThrottle())
		previous := client.session.state
		frame := client.session.advance()
		b.recordOutcome(previous, frame.State)

		payload, err := json.Marshal(frame)
		if err != nil {
			b.log.Error("frame encode failed", logging.String("client_id", client.id), logging.Error(err))
			continue
		}
		encoded, err := client.codec.Compress(payload)
		if err != nil {
			b.log.Error("frame compress failed",
				logging.String("client_id", client.id),
				logging.String("codec", client.codec.Name()),
				logging.Error(err))
			continue
		}

		// unregister deletes the client and closes send under b.mu, so the
		// send must happen under the same lock, after re-checking membership.
		b.mu.Lock()
		registered := b.clients[client]
		delivered := false
		if registered {
			select {
			case client.send <- encoded:
				delivered = true
			default:
			}
		}
		b.mu.Unlock()

		switch {
		case !registered:
			// Client disconnected after the snapshot; nothing to deliver.
		case delivered:
			b.statsMu.Lock()
			b.framesSent++
			b.framesByCodec[client.codec.Name()]++
			b.statsMu.Unlock()
		default:
			b.log.Warn("dropping slow client", logging.String("client_id", client.id))
			b.unregister(client)
			client.conn.Close()
		}
	}
}

// recordOutcome counts rising edges of the win and loss flags. The flags are
// recomputed every tick and may clear again later, so only transitions count.
func (b *Broker) recordOutcome(previous, next sim.VehicleState) {
	b.statsMu.Lock()
	if next.Won && !previous.Won {
		b.wins++
	}
	if next.Lost && !previous.Lost {
		b.losses++
	}
	b.statsMu.Unlock()
}

// SnapshotClientCount reports the current number of connected clients.
func (b *Broker) SnapshotClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// StartupError reports a fatal serving error for readiness probes.
func (b *Broker) StartupError() error {
	b.startupMu.Lock()
	defer b.startupMu.Unlock()
	return b.startupErr
}

// SetStartupError records a fatal serving error for readiness probes.
func (b *Broker) SetStartupError(err error) {
	b.startupMu.Lock()
	b.startupErr = err
	b.startupMu.Unlock()
}

// Uptime reports how long the broker has been running.
func (b *Broker) Uptime() time.Duration {
	return time.Since(b.started)
}

// Stats returns cumulative counters for the operational handlers.
func (b *Broker) Stats() httpapi.Stats {
	clients := b.SnapshotClientCount()
	average, max := b.monitor.snapshot()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	byCodec := make(map[string]uint64, len(b.framesByCodec))
	for codec, count := range b.framesByCodec {
		byCodec[codec] = count
	}
	return httpapi.Stats{
		Clients:       clients,
		Ticks:         b.ticks,
		FramesSent:    b.framesSent,
		FramesByCodec: byCodec,
		Wins:          b.wins,
		Losses:        b.losses,
		TickAverageMs: float64(average) / float64(time.Millisecond),
		TickMaxMs:     float64(max) / float64(time.Millisecond),
	}
}

// Drops exposes the gate's per-client drop counters.
func (b *Broker) Drops() map[string]input.DropCounters {
	return b.gate.Metrics()
}
