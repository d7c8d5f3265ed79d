// Package client wires the connection manager, event router and the
// domain trackers into one realtime sync client.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aboyz1/HobbyVerse-sub001/internal/auth"
	"github.com/aboyz1/HobbyVerse-sub001/internal/chat"
	"github.com/aboyz1/HobbyVerse-sub001/internal/config"
	"github.com/aboyz1/HobbyVerse-sub001/internal/connection"
	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/reconcile"
	"github.com/aboyz1/HobbyVerse-sub001/internal/router"
	"github.com/aboyz1/HobbyVerse-sub001/internal/subscription"
	"github.com/aboyz1/HobbyVerse-sub001/internal/typing"
)

var ErrAlreadyStarted = errors.New("client already started")

const stopTimeout = 5 * time.Second

// Client is the composition root for one realtime session.
type Client struct {
	cfg      config.ClientConfig
	logger   *slog.Logger
	cred     auth.Credential
	viewerID string

	conn       connection.Manager
	router     *router.Router
	registry   *subscription.Registry
	reconciler *reconcile.Reconciler
	typing     *typing.Tracker
	chat       *chat.Manager

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New builds a client from validated configuration. Nothing touches the
// network until Start.
func New(cfg config.ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cred := auth.NewCredential(cfg.Auth.Token)
	if cred.IsZero() {
		return nil, fmt.Errorf("missing auth token")
	}

	viewerID := cfg.Auth.ViewerID
	if viewerID == "" {
		viewerID = cred.Subject()
	}

	conn := connection.NewManager(connection.ManagerConfig{
		WSURL:              cfg.Server.WSURL,
		HandshakeTimeout:   cfg.Server.HandshakeTimeout,
		PingInterval:       cfg.Server.PingInterval,
		PingTimeout:        cfg.Server.PingTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		ReconnectBaseDelay: cfg.Reconnect.BaseDelay,
		ReconnectMaxDelay:  cfg.Reconnect.MaxDelay,
		MaxAttempts:        cfg.Reconnect.MaxAttempts,
		FrameBufferSize:    cfg.Buffers.InboundSize,
	}, logger)

	rt := router.New(conn.Frames(), cfg.Buffers.LocalSize, logger)

	reg := subscription.NewRegistry(conn, logger)
	reg.Bind(rt)

	rec := reconcile.New(viewerID, logger)
	rec.Bind(rt)

	tr := typing.NewTracker(cfg.Typing.TTL, logger)
	tr.Bind(rt)

	ch := chat.NewManager(chat.Config{
		SendTimeout:  cfg.Chat.SendTimeout,
		PendingLimit: cfg.Chat.PendingLimit,
		ViewerID:     viewerID,
	}, conn, reg, rt, logger)
	ch.Bind(rt)

	return &Client{
		cfg:        cfg,
		logger:     logger,
		cred:       cred,
		viewerID:   viewerID,
		conn:       conn,
		router:     rt,
		registry:   reg,
		reconciler: rec,
		typing:     tr,
		chat:       ch,
	}, nil
}

// Start runs the router and opens the connection. It returns once the
// first attempt is in flight; transport failures are retried in the
// background, only an auth rejection comes back as an error.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	c.group = g
	g.Go(func() error {
		return c.router.Run(gctx)
	})
	c.mu.Unlock()

	if err := c.conn.Connect(ctx, c.cred); err != nil {
		c.Stop()
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Stop disconnects and shuts the router down. Safe to call more than
// once.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	g := c.group
	c.mu.Unlock()

	c.conn.Disconnect()
	cancel()

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		c.logger.Warn("router did not stop in time")
	}
}

// On registers a handler for a named event. The handle cancels the
// registration.
func (c *Client) On(name string, fn func(data json.RawMessage)) *router.Subscription {
	return c.router.On(name, fn)
}

// State returns the connection lifecycle state.
func (c *Client) State() connection.State {
	return c.conn.State()
}

// ViewerID returns the local user's id, either configured or derived
// from the credential's sub claim.
func (c *Client) ViewerID() string {
	return c.viewerID
}

// JoinRoom enters a chat room and declares interest in its events.
func (c *Client) JoinRoom(roomID string) {
	c.chat.Join(roomID)
}

// LeaveRoom exits a chat room and clears its typing indicators.
func (c *Client) LeaveRoom(roomID string) {
	c.chat.Leave(roomID)
	c.typing.ClearRoom(roomID)
}

// SendMessage sends a chat message; the returned correlation id
// identifies the pending entry until the server confirms it.
func (c *Client) SendMessage(roomID, content string) (string, error) {
	corr, err := c.chat.Send(roomID, content)
	if err != nil {
		return "", err
	}
	// Sending a message ends the local typing indicator.
	c.conn.Emit(event.TypingStopName, roomID)
	return corr, nil
}

// RetryMessage re-sends a failed message.
func (c *Client) RetryMessage(roomID, correlationID string) error {
	return c.chat.Retry(roomID, correlationID)
}

// History returns the ordered message log for a room.
func (c *Client) History(roomID string) []chat.Message {
	return c.chat.History(roomID)
}

// StartTyping tells the room the viewer is composing a message. The
// payload is just the room id; the server derives the sender from the
// connection. The caller debounces; every call goes out on the wire.
func (c *Client) StartTyping(roomID string) {
	c.conn.Emit(event.TypingStartName, roomID)
}

// StopTyping withdraws the viewer's typing indicator.
func (c *Client) StopTyping(roomID string) {
	c.conn.Emit(event.TypingStopName, roomID)
}

// TypingUsers returns who is currently typing in a room.
func (c *Client) TypingUsers(roomID string) []string {
	return c.typing.TypingUsersFor(roomID)
}

// FollowProject subscribes to a project's counter updates.
func (c *Client) FollowProject(projectID string) {
	c.registry.Subscribe(subscription.KindProject, projectID)
}

// UnfollowProject drops a project subscription.
func (c *Client) UnfollowProject(projectID string) {
	c.registry.Unsubscribe(subscription.KindProject, projectID)
}

// FollowChallenge subscribes to a challenge's counter updates.
func (c *Client) FollowChallenge(challengeID string) {
	c.registry.Subscribe(subscription.KindChallenge, challengeID)
}

// UnfollowChallenge drops a challenge subscription.
func (c *Client) UnfollowChallenge(challengeID string) {
	c.registry.Unsubscribe(subscription.KindChallenge, challengeID)
}

// Counters returns the accumulated counter patch for an entity.
func (c *Client) Counters(entityID string) reconcile.Patch {
	return c.reconciler.PatchFor(entityID)
}

// Reconciler exposes the counter reconciler for local optimistic
// updates.
func (c *Client) Reconciler() *reconcile.Reconciler {
	return c.reconciler
}

// Subscriptions returns the current interest set in insertion order.
func (c *Client) Subscriptions() []subscription.Entry {
	return c.registry.Entries()
}
