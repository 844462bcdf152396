// Package matrix connects the agent to Matrix rooms and direct chats
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/commands"
	"github.com/hession/shreya/internal/logger"
)

// Source is the front-end name reported to the agent
const Source = "matrix"

const typingTimeout = 30 * time.Second

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Rooms       []string // rooms to join at start-up, in addition to invites
	// DB persists the sync token across restarts. When nil an in-memory
	// store is used and old messages are skipped by timestamp only.
	DB *sql.DB
}

// Bot answers Matrix messages through the agent
type Bot struct {
	client   *mautrix.Client
	config   *Config
	agent    *agent.Agent
	commands *commands.Service

	botID   id.UserID
	started time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Matrix bot
func New(config *Config, a *agent.Agent, svc *commands.Service) (*Bot, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	if config.DB != nil {
		client.Store = NewDBSyncStore(config.DB)
		logger.Info("Matrix sync store: persistent SQLite store")
	} else {
		logger.Warn("Matrix sync store: in-memory, the sync position is lost on restart")
	}

	return &Bot{
		client:   client,
		config:   config,
		agent:    a,
		commands: svc,
		botID:    id.UserID(config.UserID),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start joins the configured rooms and begins syncing in the background
func (b *Bot) Start(ctx context.Context) error {
	b.started = time.Now()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("unexpected Matrix syncer type")
	}
	syncer.OnEventType(event.EventMessage, b.onMessage)
	syncer.OnEventType(event.StateMember, b.onMember)

	for _, roomID := range b.config.Rooms {
		if err := b.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	go b.syncLoop()
	logger.Info("Matrix bot started as %s", b.botID)
	return nil
}

// syncLoop keeps /sync running with exponential back-off until Stop
func (b *Bot) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := b.client.Sync()
		if err == nil {
			// clean StopSync
			return
		}
		select {
		case <-b.stopCh:
			return
		default:
		}
		logger.Error("Matrix sync stopped, reconnecting in %s: %v", backoff, err)
		select {
		case <-b.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// Stop stops syncing and waits for in-flight replies
func (b *Bot) Stop() {
	close(b.stopCh)
	b.client.StopSync()
	b.wg.Wait()
}

func (b *Bot) onMember(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if evt.GetStateKey() != b.botID.String() {
		return
	}
	logger.Info("Invited to %s by %s, joining", evt.RoomID, evt.Sender)
	if err := b.joinRoom(ctx, evt.RoomID); err != nil {
		logger.Warn("Failed to join %s: %v", evt.RoomID, err)
	}
}

func (b *Bot) onMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.botID {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	// history delivered on first sync
	if time.UnixMilli(evt.Timestamp).Before(b.started) {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleMessage(context.WithoutCancel(ctx), evt, msg)
	}()
}

func (b *Bot) handleMessage(ctx context.Context, evt *event.Event, msg *event.MessageEventContent) {
	group := b.isGroup(ctx, evt.RoomID)
	if group && !addressed(msg, b.botID, b.commands.IsCommand(msg.Body)) {
		return
	}

	if _, err := b.client.UserTyping(ctx, evt.RoomID, true, typingTimeout); err != nil {
		logger.Debug("Typing indicator failed in %s: %v", evt.RoomID, err)
	}
	defer func() {
		_, _ = b.client.UserTyping(ctx, evt.RoomID, false, 0)
	}()

	reply, ok := b.respond(ctx, evt.Sender, b.displayName(ctx, evt.Sender), msg.Body, group)
	if !ok {
		return
	}
	b.send(ctx, evt.RoomID, evt.ID, reply)
}

// respond turns an inbound message into the reply text. It returns false when
// there is nothing to send.
func (b *Bot) respond(ctx context.Context, sender id.UserID, displayName, body string, group bool) (string, bool) {
	text := body
	if group {
		text = stripMention(body, b.botID)
	}
	if text == "" {
		return "", false
	}

	userID := sender.String()
	privileged := b.agent.IsOwner(userID)

	if b.commands.IsCommand(text) {
		reply, err := b.commands.Handle(ctx, text, commands.Caller{
			UserID:      userID,
			DisplayName: displayName,
			Privileged:  privileged,
		})
		if err != nil {
			return b.agent.Persona().Fallback, true
		}
		return reply, true
	}

	resp, err := b.agent.HandleMessage(ctx, agent.Request{
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
		Privileged:  privileged,
		Source:      Source,
	})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			return "", false
		}
		logger.Error("Matrix message from %s: %v", userID, err)
		if resp.Reply == "" {
			return b.agent.Persona().Fallback, true
		}
	}
	return resp.Reply, true
}

// isGroup reports whether the room has more than two members. Lookup failures
// count as a group so the bot stays quiet.
func (b *Bot) isGroup(ctx context.Context, roomID id.RoomID) bool {
	members, err := b.client.JoinedMembers(ctx, roomID)
	if err != nil {
		logger.Warn("Failed to list members of %s: %v", roomID, err)
		return true
	}
	return len(members.Joined) > 2
}

func (b *Bot) displayName(ctx context.Context, userID id.UserID) string {
	profile, err := b.client.GetProfile(ctx, userID)
	if err != nil || profile == nil || profile.DisplayName == "" {
		return localpart(userID)
	}
	return profile.DisplayName
}

// send replies in-thread and falls back to a plain message
func (b *Bot) send(ctx context.Context, roomID id.RoomID, eventID id.EventID, text string) {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: eventID},
		},
	}
	_, err := b.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	if err == nil {
		return
	}
	logger.Warn("Reply to %s failed, sending plain message: %v", eventID, err)
	if _, err := b.client.SendText(ctx, roomID, text); err != nil {
		logger.Error("Failed to send message to %s: %v", roomID, err)
	}
}

func (b *Bot) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := b.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// M_FORBIDDEN also covers already being a member
		if errors.Is(err, mautrix.MForbidden) {
			logger.Warn("Join %s: already a member or access denied, continuing", roomID)
			return nil
		}
		return err
	}
	return nil
}

// UserID returns the bot's Matrix user ID
func (b *Bot) UserID() string {
	return b.botID.String()
}
