package listener

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/avvvet/card-indexer/internal/comm"
	"github.com/avvvet/card-indexer/internal/indexer/extract"
	"github.com/avvvet/card-indexer/internal/indexer/service"
	"github.com/avvvet/card-indexer/internal/indexer/state"
	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Gateway is the part of *discordgo.Session the listener drives.
type Gateway interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

type Publisher interface {
	PublishIndexed(ev comm.IndexedEvent)
}

// Message is a chat message reduced to what indexing looks at.
type Message struct {
	GuildID     string
	AuthorID    string
	ChannelName string
	Embeds      []extract.Embed
}

type crash struct {
	err   error
	stack []byte
}

// Listener consumes the gateway event stream and indexes card listings
// posted by the target bot in the target server.
type Listener struct {
	gw       Gateway
	serverID string
	botID    string
	cards    *service.CardService
	state    *state.State
	broker   Publisher

	crashes  chan crash
	crashed  atomic.Bool
	stopping atomic.Bool
}

func NewListener(gw Gateway, serverID, botID string, cards *service.CardService, st *state.State, broker Publisher) *Listener {
	if serverID == "" {
		log.Warn("TARGET_SERVER_ID not set, no messages will be indexed")
	}
	return &Listener{
		gw:       gw,
		serverID: serverID,
		botID:    botID,
		cards:    cards,
		state:    st,
		broker:   broker,
		crashes:  make(chan crash, 1),
	}
}

// NewSession builds a discord session that receives guild message content
// and dispatches events synchronously.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	s.StateEnabled = true
	// handlers run one at a time on the gateway goroutine
	s.SyncEvents = true
	return s, nil
}

// Run opens the gateway and blocks until ctx is done or the listener
// crashes. A crash is terminal: the status flips to Crashed and Run returns
// the cause. There is no reconnect after a crash.
func (l *Listener) Run(ctx context.Context) (err error) {
	var stack []byte
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
			stack = debug.Stack()
		}
		if err != nil {
			l.fail(crash{err: err, stack: stack})
		}
	}()

	l.state.SetStatus(state.Connecting)

	l.gw.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		defer l.recoverHandler()
		l.onReady(r)
	})
	l.gw.AddHandler(func(s *discordgo.Session, r *discordgo.Resumed) {
		defer l.recoverHandler()
		l.onResumed()
	})
	l.gw.AddHandler(func(s *discordgo.Session, d *discordgo.Disconnect) {
		defer l.recoverHandler()
		l.onDisconnect()
	})
	l.gw.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		defer l.recoverHandler()
		l.onMessageCreate(s, m)
	})

	if err := l.gw.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	select {
	case <-ctx.Done():
		l.stopping.Store(true)
		if err := l.gw.Close(); err != nil {
			log.WithError(err).Warn("closing gateway")
		}
		l.state.SetStatus(state.Offline)
		l.state.Log("Listener stopped.")
		return nil
	case c := <-l.crashes:
		stack = c.stack
		if err := l.gw.Close(); err != nil {
			log.WithError(err).Warn("closing gateway after crash")
		}
		return c.err
	}
}

// recoverHandler turns a panic inside an event handler into a crash.
func (l *Listener) recoverHandler() {
	if r := recover(); r != nil {
		c := crash{err: fmt.Errorf("event handler panic: %v", r), stack: debug.Stack()}
		if l.crashed.CompareAndSwap(false, true) {
			l.crashes <- c
		}
	}
}

func (l *Listener) fail(c crash) {
	l.crashed.Store(true)
	if c.stack != nil {
		log.WithError(c.err).Errorf("listener crashed\n%s", c.stack)
	} else {
		log.WithError(c.err).Error("listener crashed")
	}
	l.state.SetStatus(state.Crashed)
	l.state.Add("Listener crashed: %v", c.err)
}

func (l *Listener) active() bool {
	return !l.crashed.Load() && !l.stopping.Load()
}

func (l *Listener) onReady(r *discordgo.Ready) {
	if !l.active() {
		return
	}
	name := "unknown user"
	if r != nil && r.User != nil {
		name = r.User.Username
	}
	l.state.SetStatus(state.Online)
	l.state.Log("Logged in as %s. Listening for card data...", name)
}

func (l *Listener) onResumed() {
	if !l.active() {
		return
	}
	l.state.SetStatus(state.Online)
	l.state.Log("Reconnected, indexing resumed.")
}

func (l *Listener) onDisconnect() {
	if !l.active() {
		return
	}
	log.Warn("disconnected from discord")
	l.state.SetStatus(state.Disconnected)
	l.state.Log("Disconnected from Discord.")
}

func (l *Listener) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !l.active() || m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if !l.eligible(m.GuildID, m.Author.ID, len(m.Embeds)) {
		return
	}

	embeds := make([]extract.Embed, 0, len(m.Embeds))
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		se := extract.SimpleEmbed{Desc: e.Description}
		if e.Author != nil {
			se.Author = e.Author.Name
			se.Icon = e.Author.IconURL
		}
		embeds = append(embeds, se)
	}

	l.HandleMessage(Message{
		GuildID:     m.GuildID,
		AuthorID:    m.Author.ID,
		ChannelName: channelName(s, m.ChannelID),
		Embeds:      embeds,
	})
}

func (l *Listener) eligible(guildID, authorID string, embeds int) bool {
	return guildID != "" && guildID == l.serverID && authorID == l.botID && embeds > 0
}

// HandleMessage indexes every collection or wishlist embed in m.
func (l *Listener) HandleMessage(m Message) {
	if !l.eligible(m.GuildID, m.AuthorID, len(m.Embeds)) {
		return
	}

	for _, e := range m.Embeds {
		listing, ok := extract.Extract(e)
		if !ok {
			continue
		}

		updated := l.cards.AddOwner(listing.Cards, listing.OwnerID)
		if len(updated) == 0 {
			continue
		}

		l.state.Log("Indexed %d new card(s) from %s in #%s.", len(updated), listing.OwnerName, m.ChannelName)
		if l.broker != nil {
			l.broker.PublishIndexed(comm.IndexedEvent{
				OwnerID:   listing.OwnerID,
				OwnerName: listing.OwnerName,
				Channel:   m.ChannelName,
				Cards:     updated,
			})
		}
	}
}

// channelName looks the channel up in the session cache, then over REST,
// and falls back to the raw id.
func channelName(s *discordgo.Session, channelID string) string {
	if s == nil {
		return channelID
	}
	if s.State != nil {
		if ch, err := s.State.Channel(channelID); err == nil {
			return ch.Name
		} else if !errors.Is(err, discordgo.ErrStateNotFound) {
			log.WithError(err).Debug("channel cache lookup")
		}
	}
	if ch, err := s.Channel(channelID); err == nil {
		return ch.Name
	}
	return channelID
}
