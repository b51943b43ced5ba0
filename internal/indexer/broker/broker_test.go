package broker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/avvvet/card-indexer/internal/comm"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	subject string
	data    []byte
	err     error
}

func (r *recorder) Publish(subject string, data []byte) error {
	r.subject = subject
	r.data = data
	return r.err
}

func TestPublishIndexed(t *testing.T) {
	rec := &recorder{}
	b := &Broker{Conn: rec, Subject: "cards.indexed"}

	b.PublishIndexed(comm.IndexedEvent{OwnerID: "555", OwnerName: "Alice", Channel: "trades", Cards: []string{"A"}})

	assert.Equal(t, "cards.indexed", rec.subject)
	var msg comm.WSMessage
	require.NoError(t, json.Unmarshal(rec.data, &msg))
	assert.Equal(t, "cards-indexed", msg.Type)

	var ev comm.IndexedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "555", ev.OwnerID)
	assert.Equal(t, []string{"A"}, ev.Cards)
}

func TestPublishWithoutConnection(t *testing.T) {
	assert.NotPanics(t, func() {
		NewBroker(nil, "x").PublishIndexed(comm.IndexedEvent{})
		var b *Broker
		b.PublishIndexed(comm.IndexedEvent{})
	})
}

func TestPublishErrorIsLogged(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	b := &Broker{Conn: &recorder{err: errors.New("closed")}, Subject: "s"}
	b.PublishIndexed(comm.IndexedEvent{OwnerID: "1"})

	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "closed")
}
