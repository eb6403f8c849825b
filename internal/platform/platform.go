// Package platform defines the engine-facing view of the messaging
// platform: inbound events, the session operations engines may perform,
// and the dispatcher that fans events out to handlers.
package platform

import (
	"context"
	"time"
)

// EventKind discriminates inbound events.
type EventKind string

const (
	EventMessage     EventKind = "message"
	EventReactionAdd EventKind = "reaction_add"
)

// Event is a single inbound message or reaction.
type Event struct {
	Kind       EventKind
	ChannelID  string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	MessageID  string
	Content    string
	Emoji      string
	// Direct marks events arriving over a private one-to-one channel.
	Direct bool
}

// Embed is the rich variant of published content.
type Embed struct {
	Title       string
	Description string
}

// Message is a platform message as fetched or created by a Session.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	Embeds    []Embed
}

// ReactionMatch decides whether a reaction satisfies a pending wait.
type ReactionMatch func(userID, emoji string) bool

// Session is the platform side-effect surface available to the engines.
// Implementations are external adapters; engines never hold platform
// state between invocations.
type Session interface {
	Send(ctx context.Context, channelID, content string) (*Message, error)
	SendEmbed(ctx context.Context, channelID string, embed Embed) (*Message, error)
	Reply(ctx context.Context, channelID, messageID, content string) error
	React(ctx context.Context, channelID, messageID, emoji string) error
	Edit(ctx context.Context, channelID, messageID, content string) error
	RemoveAllReactions(ctx context.Context, channelID, messageID string) error
	// Message fetches the full message, covering partial event payloads.
	Message(ctx context.Context, channelID, messageID string) (*Message, error)
	// AwaitReaction blocks until a matching reaction lands on the message
	// or the timeout elapses. It reports whether a match arrived.
	AwaitReaction(ctx context.Context, channelID, messageID string, timeout time.Duration, match ReactionMatch) (bool, error)
}
