package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MaxLogs is how many event lines the surface keeps.
const MaxLogs = 50

type Status struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

var (
	Offline      = Status{Text: "Offline", Color: "grey"}
	Connecting   = Status{Text: "Connecting...", Color: "blue"}
	Online       = Status{Text: "Online - Indexing", Color: "green"}
	Disconnected = Status{Text: "Disconnected", Color: "orange"}
	Crashed      = Status{Text: "Crashed", Color: "red"}
)

const (
	EventStatus = "status"
	EventLog    = "log"
)

// Event is pushed to subscribers on every status change or new log line.
type Event struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Status *Status `json:"status,omitempty"`
	Line   string  `json:"line,omitempty"`
}

// State is the listener status and rolling event log shared between the
// listener and the HTTP handlers.
type State struct {
	mu     sync.RWMutex
	status Status
	logs   []string // newest first
	subs   map[string]chan Event
	now    func() time.Time
}

func New() *State {
	return &State{
		status: Offline,
		logs:   []string{},
		subs:   make(map[string]chan Event),
		now:    time.Now,
	}
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *State) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.broadcast(Event{ID: uuid.NewString(), Type: EventStatus, Status: &st})
	s.mu.Unlock()
}

// Log records a line with Add and mirrors the message to the process log.
func (s *State) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Info(msg)
	s.add(msg)
}

// Add prepends a timestamped line and trims the log to MaxLogs without
// writing to the process log. Use it when the caller has already logged.
func (s *State) Add(format string, args ...interface{}) {
	s.add(fmt.Sprintf(format, args...))
}

func (s *State) add(msg string) {
	s.mu.Lock()
	line := fmt.Sprintf("[%s] %s", s.now().Format("15:04:05"), msg)
	logs := make([]string, 0, MaxLogs)
	logs = append(logs, line)
	logs = append(logs, s.logs...)
	if len(logs) > MaxLogs {
		logs = logs[:MaxLogs]
	}
	s.logs = logs
	s.broadcast(Event{ID: uuid.NewString(), Type: EventLog, Line: line})
	s.mu.Unlock()
}

// Logs returns the most recent lines, newest first.
func (s *State) Logs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.logs...)
}

// Subscribe registers a listener for events. Slow subscribers miss events
// rather than block the producer. cancel must be called to release it.
func (s *State) Subscribe(buffer int) (events <-chan Event, cancel func()) {
	id := uuid.NewString()
	ch := make(chan Event, buffer)

	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// caller holds s.mu
func (s *State) broadcast(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
