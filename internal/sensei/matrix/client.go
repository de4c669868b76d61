// Package matrix connects Sensei to Matrix rooms.
//
// Every plain-text message in a configured room is handed to a MessageHandler
// together with the room and sender; a non-empty reply is posted back to the
// same room.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/sensei/common/retry"
	"github.com/bdobrica/sensei/internal/sensei/commands"
)

const typingTimeout = 30 * time.Second

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are the room IDs Sensei joins and answers in.
	Rooms []string
	// DB persists the sync token across restarts. When nil, an in-memory
	// store is used and room history is replayed on every start.
	DB     *sql.DB
	Logger *slog.Logger
	// Retry controls reply delivery. Zero uses retry.DefaultConfig.
	Retry retry.Config
}

// MessageHandler answers one incoming message. An empty reply sends nothing.
type MessageHandler func(ctx context.Context, origin commands.Origin, text string) string

// roomAPI is the subset of *mautrix.Client used to talk to rooms.
type roomAPI interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
}

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	api     roomAPI
	config  Config
	logger  *slog.Logger
	stopCh  chan struct{}
	handler MessageHandler
}

// New creates a Matrix client. It does not contact the homeserver.
func New(cfg Config) (*Client, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	c := newClient(client, cfg)
	c.client = client

	if cfg.DB != nil {
		client.Store = NewDBSyncStore(cfg.DB)
		c.logger.Info("matrix sync store: using persistent SQLite store")
	} else {
		c.logger.Warn("matrix sync store: no DB configured, history will replay on restart")
	}
	return c, nil
}

func newClient(api roomAPI, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &Client{
		api:    api,
		config: cfg,
		logger: logger.With("component", "matrix"),
		stopCh: make(chan struct{}),
	}
}

// Start joins the configured rooms and begins syncing in the background.
// The sync loop reconnects with exponential backoff until Stop is called.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.handler = handler

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unsupported syncer")
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join room %s: %w", roomID, err)
		}
	}

	go c.syncLoop()
	return nil
}

func (c *Client) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.client.Sync()
		if err == nil {
			// Only a StopSync call ends Sync cleanly.
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		c.logger.Error("matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop ends the sync loop.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	close(c.stopCh)
	if c.client != nil {
		c.client.StopSync()
	}
}

// SendMessage posts text to a room, retrying transient failures.
func (c *Client) SendMessage(ctx context.Context, roomID, text string) error {
	err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
		_, err := c.api.SendText(ctx, id.RoomID(roomID), text)
		return err
	})
	if err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// IsWatchedRoom reports whether roomID is one of the configured rooms.
func (c *Client) IsWatchedRoom(roomID string) bool {
	return slices.Contains(c.config.Rooms, roomID)
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return
	}
	if !c.IsWatchedRoom(evt.RoomID.String()) || c.handler == nil {
		return
	}

	origin := commands.Origin{RoomID: evt.RoomID.String(), SenderID: evt.Sender.String()}
	c.setTyping(ctx, evt.RoomID, true)
	reply := c.handler(ctx, origin, content.Body)
	c.setTyping(ctx, evt.RoomID, false)

	if reply == "" {
		return
	}
	if err := c.SendMessage(ctx, origin.RoomID, reply); err != nil {
		c.logger.Error("reply not delivered", "room", origin.RoomID, "err", err)
	}
}

func (c *Client) setTyping(ctx context.Context, roomID id.RoomID, typing bool) {
	if _, err := c.api.UserTyping(ctx, roomID, typing, typingTimeout); err != nil {
		c.logger.Debug("typing indicator failed", "room", roomID, "err", err)
	}
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.api.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("join room: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
