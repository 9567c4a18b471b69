package services

import (
	"net/http"
	"sync"
	"time"

	"learnlynk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ExecutionEvent is the payload broadcast to activity feed subscribers
// whenever an execution reaches a terminal state.
type ExecutionEvent struct {
	ExecutionID string    `json:"execution_id"`
	RuleID      uint      `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	LeadID      uint      `json:"lead_id"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

type activityClient struct {
	id   string
	conn *websocket.Conn
	send chan ExecutionEvent
}

// ActivityHub fans execution outcomes out to connected dashboard clients.
type ActivityHub struct {
	clients    map[string]*activityClient
	broadcast  chan ExecutionEvent
	register   chan *activityClient
	unregister chan *activityClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var activityUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the CORS layer in front
	},
}

func NewActivityHub(logger *logrus.Logger) *ActivityHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &ActivityHub{
		clients:    make(map[string]*activityClient),
		broadcast:  make(chan ExecutionEvent, 64),
		register:   make(chan *activityClient),
		unregister: make(chan *activityClient),
		logger:     logger,
	}
}

// PublishExecution implements ExecutionPublisher for the orchestrator.
// Non-blocking: if the hub is saturated the event is dropped.
func (h *ActivityHub) PublishExecution(exec *models.AutomationExecution, rule *models.AutomationRule) {
	evt := ExecutionEvent{
		ExecutionID: exec.ID,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		LeadID:      exec.LeadID,
		Status:      exec.Status,
		Timestamp:   time.Now(),
	}
	select {
	case h.broadcast <- evt:
	default:
	}
}

// Run pumps registration and broadcast channels. Call in a goroutine.
func (h *ActivityHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			h.logger.Infof("activity: client %s connected", client.id)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				h.logger.Infof("activity: client %s disconnected", client.id)
			}
			h.mutex.Unlock()

		case evt := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- evt:
				default:
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// ClientCount reports connected subscribers.
func (h *ActivityHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams execution events until
// the client goes away.
func (h *ActivityHub) HandleWebSocket(c *gin.Context) {
	conn, err := activityUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("activity: websocket upgrade failed: %v", err)
		return
	}

	client := &activityClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan ExecutionEvent, 16),
	}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *ActivityHub) writePump(client *activityClient) {
	defer client.conn.Close()
	for evt := range client.send {
		if err := client.conn.WriteJSON(evt); err != nil {
			h.unregister <- client
			return
		}
	}
}

// readPump discards inbound frames; it exists to notice closed
// connections.
func (h *ActivityHub) readPump(client *activityClient) {
	defer func() {
		h.unregister <- client
		client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
