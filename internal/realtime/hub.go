package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub fans broadcasts out to websocket clients grouped by channel. Delivery
// is best-effort: a slow client's backlog is dropped, never blocked on, so
// job processing is unaffected by notification failures.
type Hub struct {
	authorizer ChannelAuthorizer
	bus        *Bus
	logger     zerolog.Logger
	upgrader   websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]map[*client]struct{}
	clients  map[*client]struct{}

	dropped atomic.Int64
}

func NewHub(authorizer ChannelAuthorizer, bus *Bus, logger zerolog.Logger) *Hub {
	return &Hub{
		authorizer: authorizer,
		bus:        bus,
		logger:     logger.With().Str("component", "realtime").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		channels: make(map[string]map[*client]struct{}),
		clients:  make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and runs the client's pumps. The caller has
// already authenticated the connection and supplies its identity.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, id Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := newClient(h, conn, id)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().Str("conn_id", c.id).Str("user_id", id.UserID).Msg("Realtime client connected")
	go c.writePump()
	go c.readPump(r.Context())
}

// EmitJobProgress broadcasts a progress event to the job's channel and the
// owner's user channel.
func (h *Hub) EmitJobProgress(jobID string, event JobProgress) {
	h.Publish("job:"+jobID, "job-progress", event)
	if event.UserID != "" {
		h.Publish("user:"+event.UserID, "job-progress", event)
	}
}

// EmitBondingEvent broadcasts a bonding-curve event to the dataset's channel.
func (h *Hub) EmitBondingEvent(datasetID string, event BondingEvent) {
	h.Publish("bonding:"+datasetID, "bonding:"+string(event.Type), event)
}

// Publish sends an envelope to every subscriber of channel.
func (h *Hub) Publish(channel, event string, data interface{}) {
	env := Envelope{Event: event, Channel: channel, Data: data}
	h.bus.publish(channel, env)

	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("channel", channel).Msg("Failed to encode realtime event")
		return
	}

	// Sends happen under the read lock so a disconnecting client cannot
	// close its send channel mid-broadcast.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		select {
		case c.send <- payload:
		default:
			h.dropped.Add(1)
			h.logger.Warn().
				Str("channel", channel).
				Str("conn_id", c.id).
				Str("user_id", c.identity.UserID).
				Int64("dropped_total", h.dropped.Load()).
				Msg("Dropping realtime event for slow client")
		}
	}
}

// DroppedEvents reports how many events were discarded for slow clients.
func (h *Hub) DroppedEvents() int64 {
	return h.dropped.Load()
}

func (h *Hub) subscribe(c *client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*client]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
	c.channels[channel] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(c.channels, channel)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range c.channels {
		if subs, ok := h.channels[channel]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	delete(h.clients, c)
}
