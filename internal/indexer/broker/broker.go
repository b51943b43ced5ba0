package broker

import (
	"encoding/json"

	"github.com/avvvet/card-indexer/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher is the part of *nats.Conn the broker needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Broker fans indexing events out to other services over NATS.
// A Broker without a connection drops everything.
type Broker struct {
	Conn    Publisher
	Subject string
}

func NewBroker(conn *nats.Conn, subject string) *Broker {
	b := &Broker{Subject: subject}
	if conn != nil {
		b.Conn = conn
	}
	return b
}

// PublishIndexed sends a "cards-indexed" message for ev.
func (b *Broker) PublishIndexed(ev comm.IndexedEvent) {
	if b == nil || b.Conn == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("error [PublishIndexed] marshaling event: %v", err)
		return
	}

	msg := &comm.WSMessage{
		Type: "cards-indexed",
		Data: data,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("error [PublishIndexed] marshaling WSMessage: %v", err)
		return
	}

	if err := b.Conn.Publish(b.Subject, payload); err != nil {
		log.Errorf("error publishing to %s for owner %s: %v", b.Subject, ev.OwnerID, err)
	}
}
