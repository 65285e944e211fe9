// Package stream fans live session snapshots out to websocket clients, and
// optionally to other processes through Redis pub/sub.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Dr-Fate/RegularityTracker/internal/session"
)

const (
	channelPrefix = "regularity:"
	channelSuffix = ":snapshots"
	sendBuffer    = 16
)

// ErrNoRedis is returned by Run when the hub has no Redis client
var ErrNoRedis = errors.New("redis not configured")

// Client is one local listener of a channel
type Client struct {
	Channel string
	Send    chan []byte
}

// envelope tags messages relayed through Redis with the publishing hub so it
// can skip its own messages
type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// Hub keeps the local clients per channel
type Hub struct {
	redis  *redis.Client
	origin string
	log    *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewHub creates a hub. redisClient may be nil for a single process.
func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		log:     zap.S().Named("stream"),
		clients: map[string]map[*Client]struct{}{},
		ready:   make(chan struct{}),
	}
}

// ConnectRedis returns a client for addr, or nil when addr is empty
func ConnectRedis(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// Register adds a client for channel
func (h *Hub) Register(channel string) *Client {
	client := &Client{
		Channel: channel,
		Send:    make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[channel] == nil {
		h.clients[channel] = map[*Client]struct{}{}
	}
	h.clients[channel][client] = struct{}{}
	return client
}

// Unregister removes the client and closes its Send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Channel]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.Channel)
	}
	close(client.Send)
}

// Clients returns the number of local clients of channel
func (h *Hub) Clients(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// Broadcast delivers payload to the local clients of channel and publishes
// it to Redis when configured
func (h *Hub) Broadcast(ctx context.Context, channel string, payload []byte) {
	h.deliver(channel, payload)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.origin, Payload: payload})
	if err != nil {
		h.log.Errorw("encoding relay message", "error", err)
		return
	}
	if err := h.redis.Publish(ctx, redisChannel(channel), msg).Err(); err != nil {
		h.log.Warnw("redis publish failed", "channel", channel, "error", err)
	}
}

// deliver drops the payload for clients whose buffer is full; the next
// snapshot supersedes it
func (h *Hub) deliver(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[channel] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// Ready is closed once Run is subscribed to Redis
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run relays snapshots published by other hubs to the local clients until
// ctx is cancelled
func (h *Hub) Run(ctx context.Context) error {
	if h.redis == nil {
		return ErrNoRedis
	}
	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to redis: %w", err)
	}
	h.readyOnce.Do(func() { close(h.ready) })

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.relay(msg)
		}
	}
}

func (h *Hub) relay(msg *redis.Message) {
	channel := channelFromRedis(msg.Channel)
	if channel == "" {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		h.log.Debugw("ignoring malformed relay message", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == h.origin {
		return
	}
	h.deliver(channel, env.Payload)
}

// Pump broadcasts every snapshot from snaps on channel until snaps is closed
// or ctx is cancelled
func (h *Hub) Pump(ctx context.Context, channel string, snaps <-chan session.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("encoding snapshot: %w", err)
			}
			h.Broadcast(ctx, channel, payload)
		}
	}
}

func redisChannel(channel string) string {
	return channelPrefix + channel + channelSuffix
}

// channelFromRedis extracts the hub channel from regularity:{channel}:snapshots
func channelFromRedis(ch string) string {
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
