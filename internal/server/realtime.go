package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventPostCreated = "post-created"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "chirp-api"

	feedTopic          = "feed"
	authorTopicPrefix  = "author:"
	realtimeBufferSize = 16
)

// RealtimeMessage is one event delivered to the subscribers of a topic.
type RealtimeMessage struct {
	Topic     string
	EventType string
	Post      posts.View
	Timestamp time.Time
}

// RealtimeDispatcher fans post events out to in-process stream subscribers.
// Slow subscribers lose messages instead of blocking the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

func authorTopic(authorID string) string {
	return authorTopicPrefix + authorID
}

// Subscribe registers a subscriber on topic until ctx is done or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topic string) (<-chan RealtimeMessage, func()) {
	if topic == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(topic, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(topic, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Topic == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Topic]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PublishPostCreated announces post on the global feed topic and on its author's topic.
func (d *RealtimeDispatcher) PublishPostCreated(_ context.Context, post posts.Post) error {
	view := post.View()
	now := time.Now().UTC()
	for _, topic := range []string{feedTopic, authorTopic(post.AuthorID)} {
		d.Publish(RealtimeMessage{
			Topic:     topic,
			EventType: RealtimeEventPostCreated,
			Post:      view,
			Timestamp: now,
		})
	}
	return nil
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(topic string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[topic][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(topic string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}

type heartbeatPayload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *httpHandler) handleFeedStream(c *gin.Context) {
	h.streamTopic(c, feedTopic)
}

func (h *httpHandler) handleTimelineStream(c *gin.Context) {
	profile, err := h.profiles.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.streamTopic(c, authorTopic(profile.ID))
}

func (h *httpHandler) streamTopic(c *gin.Context, topic string) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, topic)
	defer cleanup()
	defer h.logStreamClosed(topic)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, message.Post)
			c.Writer.Flush()
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Source: realtimeSourceBackend, Timestamp: tick.UTC()})
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) logStreamClosed(topic string) {
	h.logger.Debug("realtime stream closed", zap.String("topic", topic))
}
