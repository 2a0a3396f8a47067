package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lxzan/gws"

	"github.com/antlu/drops-farmer/internal/twitch"
)

const (
	topicPrefix       = "video-playback-by-id."
	presenceSyncEvery = time.Second
)

var errReconnectRequested = errors.New("server requested reconnect")

type outgoingMessage struct {
	Type  string      `json:"type"`
	Nonce string      `json:"nonce,omitempty"`
	Data  *listenData `json:"data,omitempty"`
}

type listenData struct {
	Topics    []string `json:"topics"`
	AuthToken string   `json:"auth_token"`
}

type incomingMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Nonce string `json:"nonce"`
	Data  struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
	} `json:"data"`
}

type playbackMessage struct {
	Type    string   `json:"type"`
	Viewers *float64 `json:"viewers"`
}

func topicFor(channelID string) string {
	return topicPrefix + channelID
}

// frameWriter is the write side of a pub/sub connection.
type frameWriter interface {
	WriteString(s string) error
}

// presenceSession mirrors the candidate pool onto one connection's topic
// subscriptions. A new connection starts a new session with nothing tracked.
type presenceSession struct {
	mu      sync.Mutex
	state   *State
	out     frameWriter
	token   string
	tracked map[string]twitch.Channel
	logger  *log.Logger
}

func newPresenceSession(state *State, out frameWriter, token string, logger *log.Logger) *presenceSession {
	return &presenceSession{
		state:   state,
		out:     out,
		token:   token,
		tracked: make(map[string]twitch.Channel),
		logger:  logger,
	}
}

// sync sends one LISTEN for pooled channels not yet subscribed and one
// UNLISTEN for subscribed channels that left the pool. An unchanged pool
// sends nothing.
func (s *presenceSession) sync() error {
	pool := s.state.Pool()

	s.mu.Lock()
	defer s.mu.Unlock()

	inPool := make(map[string]struct{}, len(pool))
	var added []twitch.Channel
	for _, channel := range pool {
		inPool[channel.ID] = struct{}{}
		if _, ok := s.tracked[channel.ID]; !ok {
			added = append(added, channel)
		}
	}
	var removed []twitch.Channel
	for id, channel := range s.tracked {
		if _, ok := inPool[id]; !ok {
			removed = append(removed, channel)
		}
	}

	if len(added) > 0 {
		if err := s.send("LISTEN", added); err != nil {
			return err
		}
		for _, channel := range added {
			s.tracked[channel.ID] = channel
		}
	}

	if len(removed) > 0 {
		if err := s.send("UNLISTEN", removed); err != nil {
			return err
		}
		for _, channel := range removed {
			delete(s.tracked, channel.ID)
		}
	}

	return nil
}

func (s *presenceSession) send(kind string, channels []twitch.Channel) error {
	topics := make([]string, len(channels))
	for i, channel := range channels {
		topics[i] = topicFor(channel.ID)
	}

	payload, err := json.MarshalToString(outgoingMessage{
		Type: kind,
		Data: &listenData{Topics: topics, AuthToken: s.token},
	})
	if err != nil {
		return err
	}
	if err := s.out.WriteString(payload); err != nil {
		return fmt.Errorf("error sending %s: %w", kind, err)
	}
	return nil
}

func (s *presenceSession) ping() error {
	return s.out.WriteString(`{"type":"PING"}`)
}

// handleFrame processes one server frame. A returned error ends the connection.
func (s *presenceSession) handleFrame(data []byte) error {
	var msg incomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Printf("Malformed frame: %v", err)
		return nil
	}

	switch msg.Type {
	case "PING":
		return s.out.WriteString(`{"type":"PONG"}`)
	case "PONG":
	case "RECONNECT":
		return errReconnectRequested
	case "RESPONSE":
		if msg.Error != "" {
			s.logger.Printf("Subscription error: %s", msg.Error)
		}
	case "MESSAGE":
		s.handlePlayback(msg.Data.Topic, msg.Data.Message)
	default:
		s.logger.Printf("Unknown frame type: %s", msg.Type)
	}
	return nil
}

// handlePlayback prunes a channel whose playback message carries no viewer
// count. stream-up and commercial notices never carry one and are ignored.
// The topic stays tracked so the next sync unsubscribes it.
func (s *presenceSession) handlePlayback(topic, message string) {
	var playback playbackMessage
	if err := json.UnmarshalFromString(message, &playback); err != nil {
		s.logger.Printf("Malformed playback message on %s: %v", topic, err)
		return
	}
	if playback.Viewers != nil {
		return
	}
	switch playback.Type {
	case "stream-up", "commercial":
		return
	}

	channelID := topic[strings.LastIndex(topic, ".")+1:]
	if channelID == "" {
		return
	}

	if s.state.RemoveCandidate(channelID) {
		s.logger.Printf("Channel %s went offline", channelID)
	}
}

// presenceHandler adapts gws events to a session.
type presenceHandler struct {
	session *presenceSession
	closed  chan error
	logger  *log.Logger
}

func (h *presenceHandler) OnOpen(conn *gws.Conn) {
	h.logger.Print("WebSocket connection opened")
}

func (h *presenceHandler) OnClose(conn *gws.Conn, err error) {
	select {
	case h.closed <- err:
	default:
	}
}

func (h *presenceHandler) OnPing(conn *gws.Conn, payload []byte) {
	conn.WritePong(payload)
}

func (h *presenceHandler) OnPong(conn *gws.Conn, payload []byte) {
}

func (h *presenceHandler) OnMessage(conn *gws.Conn, message *gws.Message) {
	defer message.Close()

	if err := h.session.handleFrame(message.Bytes()); err != nil {
		h.logger.Printf("Dropping connection: %v", err)
		conn.WriteClose(1000, nil)
	}
}

// Presence keeps a pub/sub connection whose subscriptions follow the pool.
type Presence struct {
	state          *State
	token          string
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	policy         RetryPolicy
	logger         *log.Logger
}

func NewPresence(state *State, token, url string, reconnectDelay, pingInterval time.Duration, policy RetryPolicy) *Presence {
	return &Presence{
		state:          state,
		token:          token,
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		policy:         policy,
		logger:         newLogger("presence"),
	}
}

func (p *Presence) Run(ctx context.Context) error {
	for {
		err := p.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Printf("Connection lost, reconnecting in %s: %v", p.reconnectDelay, err)

		if err := sleep(ctx, p.reconnectDelay); err != nil {
			return err
		}
	}
}

func (p *Presence) runConn(ctx context.Context) error {
	handler := &presenceHandler{closed: make(chan error, 1), logger: p.logger}

	conn, err := Retry(ctx, p.policy, p.logger, "pubsub connect", func(ctx context.Context) (*gws.Conn, error) {
		conn, _, err := gws.NewClient(handler, &gws.ClientOption{Addr: p.url})
		return conn, err
	})
	if err != nil {
		return err
	}
	defer conn.NetConn().Close()

	session := newPresenceSession(p.state, conn, p.token, p.logger)
	handler.session = session
	go conn.ReadLoop()

	syncTicker := time.NewTicker(presenceSyncEvery)
	defer syncTicker.Stop()
	pingTicker := time.NewTicker(p.pingInterval)
	defer pingTicker.Stop()

	if err := session.sync(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteClose(1000, nil)
			return ctx.Err()
		case err := <-handler.closed:
			return err
		case <-syncTicker.C:
			if err := session.sync(); err != nil {
				return err
			}
		case <-pingTicker.C:
			if err := session.ping(); err != nil {
				return err
			}
		}
	}
}
