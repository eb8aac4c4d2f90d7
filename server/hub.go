package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExecutionStartedMessage is pushed when an execution record is created.
type ExecutionStartedMessage struct {
	Type        string `json:"type"` // "execution_started"
	JobID       string `json:"job_id"`
	ExecutionID string `json:"execution_id"`
	Trigger     string `json:"trigger_type"`
	Timestamp   int64  `json:"timestamp"`
}

// ExecutionFinishedMessage is pushed when an execution reaches a terminal
// state.
type ExecutionFinishedMessage struct {
	Type            string  `json:"type"` // "execution_finished"
	JobID           string  `json:"job_id"`
	ExecutionID     string  `json:"execution_id"`
	Status          string  `json:"status"`
	ResponseStatus  int     `json:"response_status,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Timestamp       int64   `json:"timestamp"`
}

// Hub fans execution events out to connected WebSocket clients. It
// implements scheduler.ExecutionBroadcaster so the scheduler can push
// without importing this package.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	log     *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debugw("WebSocket client connected", "clients", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.sendMsg)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debugw("WebSocket client disconnected", "clients", n)
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
//
// Sends happen under the read lock: unregister closes sendMsg under the
// write lock, so a channel can never be closed between the membership check
// and the send. The sends are non-blocking, so holding the lock never
// stalls on a slow client.
func (h *Hub) broadcastMessage(msg interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

func (h *Hub) BroadcastExecutionStarted(jobID, executionID, triggerType string) {
	h.broadcastMessage(ExecutionStartedMessage{
		Type:        "execution_started",
		JobID:       jobID,
		ExecutionID: executionID,
		Trigger:     triggerType,
		Timestamp:   time.Now().Unix(),
	})
}

func (h *Hub) BroadcastExecutionFinished(jobID, executionID, status string, responseStatus int, durationSeconds float64) {
	h.broadcastMessage(ExecutionFinishedMessage{
		Type:            "execution_finished",
		JobID:           jobID,
		ExecutionID:     executionID,
		Status:          status,
		ResponseStatus:  responseStatus,
		DurationSeconds: durationSeconds,
		Timestamp:       time.Now().Unix(),
	})
}

// ClientCount reports connected clients, for the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
