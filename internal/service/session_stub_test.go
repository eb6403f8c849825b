package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confidant-bot/confidant/internal/platform"
)

// sessionOp records one platform side effect for assertions.
type sessionOp struct {
	Op        string
	ChannelID string
	MessageID string
	Content   string
	Emoji     string
	Embed     platform.Embed
}

// sessionStub implements platform.Session in memory.
type sessionStub struct {
	mu        sync.Mutex
	ops       []sessionOp
	nextID    int
	messages  map[string]*platform.Message
	reactions map[string][]string

	confirm  bool
	awaitErr error
	fetchErr error
	sendErr  error
}

func newSessionStub() *sessionStub {
	return &sessionStub{
		messages:  make(map[string]*platform.Message),
		reactions: make(map[string][]string),
	}
}

func (s *sessionStub) seed(msg *platform.Message, reactions ...string) {
	s.messages[msg.ID] = msg
	s.reactions[msg.ID] = reactions
}

func (s *sessionStub) record(op sessionOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *sessionStub) opsOf(kind string) []sessionOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sessionOp
	for _, op := range s.ops {
		if op.Op == kind {
			out = append(out, op)
		}
	}
	return out
}

func (s *sessionStub) Send(_ context.Context, channelID, content string) (*platform.Message, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.mu.Lock()
	s.nextID++
	msg := &platform.Message{ID: fmt.Sprintf("m%d", s.nextID), ChannelID: channelID, Content: content}
	s.messages[msg.ID] = msg
	s.mu.Unlock()
	s.record(sessionOp{Op: "send", ChannelID: channelID, MessageID: msg.ID, Content: content})
	return msg, nil
}

func (s *sessionStub) SendEmbed(_ context.Context, channelID string, embed platform.Embed) (*platform.Message, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.mu.Lock()
	s.nextID++
	msg := &platform.Message{ID: fmt.Sprintf("m%d", s.nextID), ChannelID: channelID, Embeds: []platform.Embed{embed}}
	s.messages[msg.ID] = msg
	s.mu.Unlock()
	s.record(sessionOp{Op: "send_embed", ChannelID: channelID, MessageID: msg.ID, Embed: embed})
	return msg, nil
}

func (s *sessionStub) Reply(_ context.Context, channelID, messageID, content string) error {
	s.record(sessionOp{Op: "reply", ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (s *sessionStub) React(_ context.Context, channelID, messageID, emoji string) error {
	s.mu.Lock()
	s.reactions[messageID] = append(s.reactions[messageID], emoji)
	s.mu.Unlock()
	s.record(sessionOp{Op: "react", ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (s *sessionStub) Edit(_ context.Context, channelID, messageID, content string) error {
	s.mu.Lock()
	if msg, ok := s.messages[messageID]; ok {
		msg.Content = content
	}
	s.mu.Unlock()
	s.record(sessionOp{Op: "edit", ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (s *sessionStub) RemoveAllReactions(_ context.Context, channelID, messageID string) error {
	s.mu.Lock()
	s.reactions[messageID] = nil
	s.mu.Unlock()
	s.record(sessionOp{Op: "remove_all_reactions", ChannelID: channelID, MessageID: messageID})
	return nil
}

func (s *sessionStub) Message(_ context.Context, _, messageID string) (*platform.Message, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	copied := *msg
	return &copied, nil
}

func (s *sessionStub) AwaitReaction(_ context.Context, _, messageID string, _ time.Duration, _ platform.ReactionMatch) (bool, error) {
	s.record(sessionOp{Op: "await_reaction", MessageID: messageID})
	return s.confirm, s.awaitErr
}
