package stream

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/ziptext/api/internal/model"
	"github.com/ziptext/api/internal/telemetry"
)

// Subscriber is one observer attached to a job's topic. Events arrive
// on C in publication order; the hub closes C when the subscriber is
// detached or dropped.
type Subscriber struct {
	JobID string
	C     chan model.ProgressEvent
}

// Hub fans progress events out to the subscribers of each job's topic.
// Publishing to a topic with no subscribers is a no-op; there is no
// buffering or replay. All registry state is owned by the Run goroutine,
// so publish, subscribe and unsubscribe never race.
type Hub struct {
	// Subscribers grouped by job ID
	topics map[string]map[*Subscriber]bool

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan *publication

	log zerolog.Logger
}

type publication struct {
	JobID string
	Event model.ProgressEvent
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]map[*Subscriber]bool),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan *publication, 256),
		log:        log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			if h.topics[sub.JobID] == nil {
				h.topics[sub.JobID] = make(map[*Subscriber]bool)
			}
			h.topics[sub.JobID][sub] = true
			telemetry.ActiveSubscribers.Inc()
			h.log.Debug().Str("job_id", sub.JobID).Msg("subscriber attached")

		case sub := <-h.unregister:
			if subs, ok := h.topics[sub.JobID]; ok {
				if _, ok := subs[sub]; ok {
					h.drop(subs, sub)
				}
			}
			h.log.Debug().Str("job_id", sub.JobID).Msg("subscriber detached")

		case pub := <-h.broadcast:
			for sub := range h.topics[pub.JobID] {
				select {
				case sub.C <- pub.Event:
				default:
					// A subscriber that cannot keep up must not stall
					// delivery to the rest of the topic.
					h.drop(h.topics[pub.JobID], sub)
					h.log.Warn().Str("job_id", pub.JobID).Msg("dropped slow subscriber")
				}
			}
		}
	}
}

func (h *Hub) drop(subs map[*Subscriber]bool, sub *Subscriber) {
	delete(subs, sub)
	close(sub.C)
	if len(subs) == 0 {
		delete(h.topics, sub.JobID)
	}
	telemetry.ActiveSubscribers.Dec()
}

// Subscribe attaches a new observer to jobID's topic.
func (h *Hub) Subscribe(jobID string) *Subscriber {
	sub := &Subscriber{
		JobID: jobID,
		C:     make(chan model.ProgressEvent, 256),
	}
	h.register <- sub
	return sub
}

// Unsubscribe detaches an observer. Safe to call after the hub has
// already dropped the subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.unregister <- sub
}

// Publish broadcasts an event to every current subscriber of jobID's
// topic. Events published for one job are delivered to each subscriber
// in publication order.
func (h *Hub) Publish(jobID string, event model.ProgressEvent) {
	h.broadcast <- &publication{JobID: jobID, Event: event}
}

// HandleConnection serves a job's event feed over one WebSocket
// connection until the client disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	sub := h.Subscribe(jobID)
	defer h.Unsubscribe(sub)

	pong := make(chan struct{}, 1)

	// Writer goroutine owns the connection's write side
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-sub.C:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					h.log.Error().Err(err).Str("job_id", jobID).Msg("failed to marshal progress event")
					continue
				}
				if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}

			case <-pong:
				if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Str("job_id", jobID).Msg("websocket closed")
			}
			break
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case pong <- struct{}{}:
			default:
			}
		}
	}
}
