// Package discord adapts the Discord gateway to the platform interfaces.
// It holds no workflow state; everything interesting happens in the
// engines behind platform.Session.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/confidant-bot/confidant/internal/platform"
)

// Gateway owns the Discord session, translates gateway events into
// platform events, and implements platform.Session.
type Gateway struct {
	session    *discordgo.Session
	dispatcher *platform.Dispatcher
	logger     *zap.Logger

	selfID string

	mu      sync.Mutex
	waiters map[string][]*reactionWaiter
}

type reactionWaiter struct {
	match platform.ReactionMatch
	done  chan struct{}
	once  sync.Once
}

// New builds a gateway for the given bot token. Open must be called
// before any Session method is used.
func New(token string, dispatcher *platform.Dispatcher, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentMessageContent

	return &Gateway{
		session:    session,
		dispatcher: dispatcher,
		logger:     logger,
		waiters:    make(map[string][]*reactionWaiter),
	}, nil
}

// Open connects to the gateway and starts feeding the dispatcher.
func (g *Gateway) Open() error {
	g.session.AddHandler(g.onMessageCreate)
	g.session.AddHandler(g.onReactionAdd)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	self, err := g.session.User("@me")
	if err != nil {
		_ = g.session.Close()
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	g.selfID = self.ID

	g.logger.Info("discord gateway connected", zap.String("bot_id", g.selfID))
	return nil
}

// Close disconnects from the gateway.
func (g *Gateway) Close() error {
	return g.session.Close()
}

// ResolveChannel verifies a configured channel id exists and is visible
// to the bot. Called once at startup; failure is fatal for the caller.
func (g *Gateway) ResolveChannel(id string) error {
	if _, err := g.session.Channel(id); err != nil {
		return fmt.Errorf("resolve channel %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	g.dispatcher.Dispatch(platform.Event{
		Kind:       platform.EventMessage,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		AuthorBot:  m.Author.Bot || m.Author.ID == g.selfID,
		MessageID:  m.ID,
		Content:    m.Content,
		Direct:     m.GuildID == "",
	})
}

func (g *Gateway) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if g.notifyWaiters(r.MessageID, r.UserID, r.Emoji.Name) {
		return
	}

	name, bot := g.reactorIdentity(r)
	g.dispatcher.Dispatch(platform.Event{
		Kind:       platform.EventReactionAdd,
		ChannelID:  r.ChannelID,
		AuthorID:   r.UserID,
		AuthorName: name,
		AuthorBot:  bot || r.UserID == g.selfID,
		MessageID:  r.MessageID,
		Emoji:      r.Emoji.Name,
		Direct:     r.GuildID == "",
	})
}

// reactorIdentity resolves the reacting user's name and bot flag; the
// gateway payload omits the user object outside guilds.
func (g *Gateway) reactorIdentity(r *discordgo.MessageReactionAdd) (string, bool) {
	if r.Member != nil && r.Member.User != nil {
		return r.Member.User.Username, r.Member.User.Bot
	}
	user, err := g.session.User(r.UserID)
	if err != nil {
		g.logger.Warn("resolve reactor", zap.String("user_id", r.UserID), zap.Error(err))
		return "", false
	}
	return user.Username, user.Bot
}

func (g *Gateway) notifyWaiters(messageID, userID, emoji string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	claimed := false
	for _, w := range g.waiters[messageID] {
		if w.match(userID, emoji) {
			w.once.Do(func() { close(w.done) })
			claimed = true
		}
	}
	return claimed
}

// Send implements platform.Session.
func (g *Gateway) Send(_ context.Context, channelID, content string) (*platform.Message, error) {
	msg, err := g.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", channelID, err)
	}
	return convertMessage(msg), nil
}

// SendEmbed implements platform.Session.
func (g *Gateway) SendEmbed(_ context.Context, channelID string, embed platform.Embed) (*platform.Message, error) {
	msg, err := g.session.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("send embed to %s: %w", channelID, err)
	}
	return convertMessage(msg), nil
}

// Reply implements platform.Session.
func (g *Gateway) Reply(_ context.Context, channelID, messageID, content string) error {
	_, err := g.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	})
	if err != nil {
		return fmt.Errorf("reply in %s: %w", channelID, err)
	}
	return nil
}

// React implements platform.Session.
func (g *Gateway) React(_ context.Context, channelID, messageID, emoji string) error {
	if err := g.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("react %s: %w", emoji, err)
	}
	return nil
}

// Edit implements platform.Session.
func (g *Gateway) Edit(_ context.Context, channelID, messageID, content string) error {
	if _, err := g.session.ChannelMessageEdit(channelID, messageID, content); err != nil {
		return fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return nil
}

// RemoveAllReactions implements platform.Session.
func (g *Gateway) RemoveAllReactions(_ context.Context, channelID, messageID string) error {
	if err := g.session.MessageReactionsRemoveAll(channelID, messageID); err != nil {
		return fmt.Errorf("remove reactions from %s: %w", messageID, err)
	}
	return nil
}

// Message implements platform.Session.
func (g *Gateway) Message(_ context.Context, channelID, messageID string) (*platform.Message, error) {
	msg, err := g.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return convertMessage(msg), nil
}

// AwaitReaction implements platform.Session.
func (g *Gateway) AwaitReaction(ctx context.Context, _ string, messageID string, timeout time.Duration, match platform.ReactionMatch) (bool, error) {
	w := &reactionWaiter{match: match, done: make(chan struct{})}

	g.mu.Lock()
	g.waiters[messageID] = append(g.waiters[messageID], w)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		remaining := g.waiters[messageID][:0]
		for _, other := range g.waiters[messageID] {
			if other != w {
				remaining = append(remaining, other)
			}
		}
		if len(remaining) == 0 {
			delete(g.waiters, messageID)
		} else {
			g.waiters[messageID] = remaining
		}
		g.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func convertMessage(msg *discordgo.Message) *platform.Message {
	out := &platform.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
	}
	for _, embed := range msg.Embeds {
		out.Embeds = append(out.Embeds, platform.Embed{
			Title:       embed.Title,
			Description: embed.Description,
		})
	}
	return out
}
