// Package sse streams live case activity to connected browsers.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"case_timeline_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType names the kind of update pushed to a case stream.
type EventType string

const (
	EventDeadlinesRecomputed EventType = "deadlines_recomputed"
	EventTaskUnlocked        EventType = "task_unlocked"
	EventTaskCompleted       EventType = "task_completed"
	EventEscalation          EventType = "escalation_triggered"
)

const clientBuffer = 32

// Event is the payload of one server-sent event.
type Event struct {
	Type   EventType `json:"type"`
	CaseID uuid.UUID `json:"caseId"`
	Data   any       `json:"data,omitempty"`
}

type client struct {
	caseID uuid.UUID
	events chan Event
}

// Service fans out case events to every client watching that case.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.caseID] = append(s.clients[c.caseID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.caseID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.caseID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(s.clients[c.caseID]) == 0 {
		delete(s.clients, c.caseID)
	}

	close(c.events)
}

// Publish sends an event to everyone watching its case. Slow clients drop
// events instead of blocking the publisher.
func (s *Service) Publish(event Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, c := range s.clients[event.CaseID] {
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse buffer full, dropping event", "caseId", event.CaseID, "type", event.Type)
		}
	}
	return delivered
}

// Watchers reports how many clients follow a case.
func (s *Service) Watchers(caseID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[caseID])
}

// Handler streams events for the case in the :id path parameter.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{caseID: caseID, events: make(chan Event, clientBuffer)}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"caseId": caseID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event := <-cl.events:
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}
