package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(s *State) {
	s.now = func() time.Time { return time.Date(2024, 1, 2, 13, 4, 5, 0, time.UTC) }
}

func TestInitialState(t *testing.T) {
	s := New()
	assert.Equal(t, Offline, s.Status())
	assert.NotNil(t, s.Logs())
	assert.Empty(t, s.Logs())
}

func TestSetStatus(t *testing.T) {
	s := New()
	s.SetStatus(Online)
	assert.Equal(t, Status{Text: "Online - Indexing", Color: "green"}, s.Status())
}

func TestLogNewestFirstAndCapped(t *testing.T) {
	s := New()
	fixedClock(s)

	for i := 0; i < MaxLogs+10; i++ {
		s.Log("event %d", i)
	}

	logs := s.Logs()
	require.Len(t, logs, MaxLogs)
	assert.Equal(t, fmt.Sprintf("[13:04:05] event %d", MaxLogs+9), logs[0])
	assert.Equal(t, "[13:04:05] event 10", logs[MaxLogs-1])
}

func TestLogsReturnsCopy(t *testing.T) {
	s := New()
	s.Log("one")
	logs := s.Logs()
	logs[0] = "changed"
	assert.NotEqual(t, "changed", s.Logs()[0])
}

func TestSubscribe(t *testing.T) {
	s := New()
	fixedClock(s)
	events, cancel := s.Subscribe(4)

	s.SetStatus(Connecting)
	s.Log("hello")

	ev := <-events
	assert.Equal(t, EventStatus, ev.Type)
	require.NotNil(t, ev.Status)
	assert.Equal(t, Connecting, *ev.Status)
	assert.NotEmpty(t, ev.ID)

	ev = <-events
	assert.Equal(t, EventLog, ev.Type)
	assert.Equal(t, "[13:04:05] hello", ev.Line)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Log("line %d", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked on a full subscriber")
	}
}

func TestLogMirrorsAndAddDoesNot(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	s := New()
	fixedClock(s)
	s.Log("mirrored")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "mirrored", hook.LastEntry().Message)

	hook.Reset()
	s.Add("only %s", "here")
	assert.Empty(t, hook.AllEntries())
	assert.Equal(t, "[13:04:05] only here", s.Logs()[0])
}
