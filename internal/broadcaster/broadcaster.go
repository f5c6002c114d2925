package broadcaster

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// Message types sent to the chart view
const (
	TypeSetSeries      = "setSeries"
	TypeScrollToLatest = "scrollToLatest"
	TypeStatus         = "status"
)

// Config holds broadcaster configuration
type Config struct {
	MaxClients      int           `json:"maxClients" yaml:"max_clients"`            // Maximum clients (default: 1000)
	BufferSize      int           `json:"bufferSize" yaml:"buffer_size"`            // Buffer size per client (default: 64)
	QueueSize       int           `json:"queueSize" yaml:"queue_size"`              // Pending broadcasts (default: 256)
	EnqueueTimeout  time.Duration `json:"enqueueTimeout" yaml:"enqueue_timeout"`    // Wait for a full queue (default: 100ms)
	DropSlowClients bool          `json:"dropSlowClients" yaml:"drop_slow_clients"` // Drop slow clients (default: true)
}

// DefaultConfig returns default broadcaster configuration
func DefaultConfig() Config {
	return Config{
		MaxClients:      1000,
		BufferSize:      64,
		QueueSize:       256,
		EnqueueTimeout:  100 * time.Millisecond,
		DropSlowClients: true,
	}
}

// Message is the envelope of every frame sent to clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// ID returns the client's ID
func (c *Client) ID() string {
	return c.id
}

// Broadcaster is the chart view: it fans series and status updates out to
// every connected WebSocket client. New clients receive the current series
// and status on connect.
type Broadcaster struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	config     Config
	metrics    utils.QueueMetrics

	lastMu     sync.RWMutex
	lastSeries []byte
	lastStatus []byte
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster(config Config) *Broadcaster {
	def := DefaultConfig()
	if config.MaxClients <= 0 {
		config.MaxClients = def.MaxClients
	}
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = def.EnqueueTimeout
	}

	return &Broadcaster{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, config.QueueSize),
		done:       make(chan struct{}),
		config:     config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow connections from any origin
			},
		},
	}
}

// Start runs the broadcaster's main loop until ctx is done
func (b *Broadcaster) Start(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return

		case client := <-b.register:
			b.handleClientRegistration(client)

		case client := <-b.unregister:
			b.handleClientUnregistration(client)

		case data := <-b.broadcast:
			b.deliver(data)
		}
	}
}

// SetSeries replaces the chart's data with samples
func (b *Broadcaster) SetSeries(samples []models.Sample) error {
	if samples == nil {
		samples = []models.Sample{}
	}
	data, err := encode(TypeSetSeries, samples)
	if err != nil {
		return err
	}

	b.lastMu.Lock()
	b.lastSeries = data
	b.lastMu.Unlock()

	return b.enqueue(data)
}

// ScrollToLatest asks clients to move the visible range to the newest sample
func (b *Broadcaster) ScrollToLatest() error {
	data, err := encode(TypeScrollToLatest, nil)
	if err != nil {
		return err
	}
	return b.enqueue(data)
}

// PublishStatus sends the tracker status to every client
func (b *Broadcaster) PublishStatus(status models.Status) error {
	data, err := encode(TypeStatus, status)
	if err != nil {
		return err
	}

	b.lastMu.Lock()
	b.lastStatus = data
	b.lastMu.Unlock()

	return b.enqueue(data)
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(Message{Type: msgType, Data: payload})
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrorTypeRender, "ENCODE", "failed to encode "+msgType, "BROADCASTER")
	}
	return data, nil
}

func (b *Broadcaster) enqueue(data []byte) error {
	select {
	case <-b.done:
		return utils.NewAppError(utils.ErrorTypeRender, "STOPPED", "broadcaster is stopped", "BROADCASTER")
	default:
	}

	if !utils.SendWithTimeout(b.broadcast, data, b.config.EnqueueTimeout, &b.metrics) {
		return utils.NewAppError(utils.ErrorTypeRender, "QUEUE_FULL", "broadcast queue is full", "BROADCASTER")
	}
	return nil
}

// handleClientRegistration handles new client registration
func (b *Broadcaster) handleClientRegistration(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.clients) >= b.config.MaxClients {
		utils.BroadcasterLogger.Warn("Client limit %d reached, rejecting %s", b.config.MaxClients, client.id)
		close(client.send)
		go client.writePump() // sends the close frame
		return
	}

	b.clients[client] = true
	go client.writePump()

	b.lastMu.RLock()
	initial := [][]byte{b.lastSeries, b.lastStatus}
	b.lastMu.RUnlock()

	for _, data := range initial {
		if data == nil {
			continue
		}
		if !utils.TrySend(client.send, data, &b.metrics) {
			b.dropLocked(client)
			return
		}
	}
	utils.BroadcasterLogger.Debug("Client %s connected (%d total)", client.id, len(b.clients))
}

// handleClientUnregistration handles client disconnection
func (b *Broadcaster) handleClientUnregistration(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[client]; ok {
		b.dropLocked(client)
		utils.BroadcasterLogger.Debug("Client %s disconnected (%d total)", client.id, len(b.clients))
	}
}

func (b *Broadcaster) deliver(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		if utils.TrySend(client.send, data, &b.metrics) {
			continue
		}
		if b.config.DropSlowClients {
			utils.BroadcasterLogger.Warn("Dropping slow client %s", client.id)
			b.dropLocked(client)
		}
	}
}

func (b *Broadcaster) dropLocked(client *Client) {
	delete(b.clients, client)
	close(client.send)
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		b.dropLocked(client)
	}
}

// UpgradeConnection upgrades HTTP connection to WebSocket
func (b *Broadcaster) UpgradeConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.BroadcasterLogger.Warn("Upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, b.config.BufferSize),
	}

	select {
	case b.register <- client:
	case <-b.done:
		conn.Close()
		return
	}

	go client.readPump(b)
}

// GetClientCount returns the current number of connected clients
func (b *Broadcaster) GetClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stats returns queue counters and the current broadcast queue fill level
func (b *Broadcaster) Stats() utils.QueueStats {
	stats := b.metrics.Stats()
	stats.Utilization = utils.Utilization(len(b.broadcast), cap(b.broadcast))
	return stats
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the read deadline alive and unregisters on disconnect.
// Clients never send anything meaningful.
func (c *Client) readPump(b *Broadcaster) {
	defer func() {
		select {
		case b.unregister <- c:
		case <-b.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.BroadcasterLogger.Debug("Client %s read error: %v", c.id, err)
			}
			return
		}
	}
}
