package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/avvvet/card-indexer/internal/comm"
	"github.com/avvvet/card-indexer/internal/indexer/state"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

type client struct {
	mu   sync.Mutex // gorilla connections allow one writer at a time
	conn *websocket.Conn
}

func (c *client) write(m *comm.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(m)
}

// caller holds c.mu
func (c *client) writeLocked(m *comm.WSMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

// Ws streams status changes and log lines to connected browsers.
type Ws struct {
	connMap  sync.Map // socketId -> *client
	upgrader websocket.Upgrader
	state    *state.State
}

func NewWs(st *state.State) *Ws {
	return &Ws{
		state: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run relays state events to every connection until ctx is done.
func (s *Ws) Run(ctx context.Context) {
	events, cancel := s.state.Subscribe(64)
	defer cancel()
	s.relay(ctx, events)
}

func (s *Ws) relay(ctx context.Context, events <-chan state.Event) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, err := eventMessage(ev)
			if err != nil {
				log.Errorf("Failed to marshal state event: %v", err)
				continue
			}
			s.broadcast(msg)
		}
	}
}

// HandleWebSocket upgrades the request and sends the current status and
// logs, after which the connection only receives broadcasts. The client is
// registered before the snapshot is read, with its write lock held, so no
// event is lost and none is delivered ahead of the snapshot.
func (s *Ws) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	c := &client{conn: conn}

	c.mu.Lock()
	s.connMap.Store(socketId, c)
	err = s.sendSnapshot(c)
	c.mu.Unlock()
	if err != nil {
		log.Errorf("Failed to send snapshot to socket %s: %v", socketId, err)
		s.HandleDisconnect(socketId)
		return
	}
	log.Debugf("New WebSocket connection established: %s", socketId)

	go s.readLoop(c, socketId)
}

func (s *Ws) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.HandleWebSocket(w, r)
}

// caller holds c.mu
func (s *Ws) sendSnapshot(c *client) error {
	st := s.state.Status()
	statusData, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := c.writeLocked(&comm.WSMessage{Type: state.EventStatus, Data: statusData}); err != nil {
		return err
	}

	logsData, err := json.Marshal(comm.LogsResponse{Logs: s.state.Logs()})
	if err != nil {
		return err
	}
	return c.writeLocked(&comm.WSMessage{Type: "logs", Data: logsData})
}

// readLoop drains client frames so close and ping frames are processed.
func (s *Ws) readLoop(c *client, socketId string) {
	defer s.HandleDisconnect(socketId)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("WebSocket unexpected close for socket %s: %v", socketId, err)
			}
			return
		}
	}
}

func (s *Ws) HandleDisconnect(socketId string) {
	if v, ok := s.connMap.LoadAndDelete(socketId); ok {
		v.(*client).conn.Close()
		log.Debugf("Closed WebSocket connection: %s", socketId)
	}
}

// Count returns the number of open connections.
func (s *Ws) Count() int {
	n := 0
	s.connMap.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}

func (s *Ws) broadcast(m *comm.WSMessage) {
	s.connMap.Range(func(key, value any) bool {
		if err := value.(*client).write(m); err != nil {
			log.Warnf("Dropping socket %s: %v", key, err)
			s.HandleDisconnect(key.(string))
		}
		return true
	})
}

func (s *Ws) closeAll() {
	s.connMap.Range(func(key, value any) bool {
		s.HandleDisconnect(key.(string))
		return true
	})
}

func eventMessage(ev state.Event) (*comm.WSMessage, error) {
	var payload interface{} = ev.Line
	if ev.Type == state.EventStatus {
		payload = ev.Status
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &comm.WSMessage{Type: ev.Type, Data: data}, nil
}
