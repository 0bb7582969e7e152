package events

import (
	"context"
	"sync"
	"time"
)

const (
	EventRoleChanged   = "role-change"
	EventPassCompleted = "pass-complete"
	EventHeartbeat     = "heartbeat"

	// AllGuilds subscribes to events from every guild.
	AllGuilds = "*"
)

// Message is one event published to operator subscribers.
type Message struct {
	GuildID   string    `json:"guild_id"`
	EventType string    `json:"event"`
	DiscordID string    `json:"discord_id,omitempty"`
	OldRank   string    `json:"old_rank,omitempty"`
	NewRank   string    `json:"new_rank,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Changes   int       `json:"changes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher fans published messages out to per-guild subscribers. Slow
// subscribers drop messages instead of blocking publishers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  32,
	}
}

// Subscribe registers a stream for guildID, or for every guild with AllGuilds.
// The subscription ends when ctx is cancelled or cleanup is called.
func (d *Dispatcher) Subscribe(ctx context.Context, guildID string) (<-chan Message, func()) {
	if guildID == "" {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(guildID, sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(guildID, sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(message Message) {
	if message.GuildID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	targets := make([]*subscriber, 0, len(d.subscribers[message.GuildID])+len(d.subscribers[AllGuilds]))
	for _, sub := range d.subscribers[message.GuildID] {
		targets = append(targets, sub)
	}
	for _, sub := range d.subscribers[AllGuilds] {
		targets = append(targets, sub)
	}
	d.mu.RUnlock()
	for _, sub := range targets {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(guildID string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[guildID]; !ok {
		d.subscribers[guildID] = make(map[int64]*subscriber)
	}
	d.subscribers[guildID][sub.id] = sub
}

func (d *Dispatcher) unregister(guildID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[guildID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, guildID)
		}
	}
	d.mu.Unlock()
}
