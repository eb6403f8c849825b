package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/confidant-bot/confidant/internal/models"
	"github.com/confidant-bot/confidant/internal/platform"
	"github.com/confidant-bot/confidant/pkg/config"
)

const (
	emojiAccept  = "✅"
	emojiReject  = "🚫"
	emojiSent    = "📨"
	emojiConfirm = "👍"
	emojiUndo    = "↩️"
)

type confessionSubmissions interface {
	Create(ctx context.Context, messageID string) error
	Transition(ctx context.Context, messageID string, to models.SubmissionStatus, from ...models.SubmissionStatus) (bool, error)
}

type confessionSequencer interface {
	Next(ctx context.Context) (string, int64, error)
}

// ModerationArchive receives a durable copy of each applied moderation
// decision. May be nil when the archive is disabled.
type ModerationArchive interface {
	Record(ctx context.Context, evt *models.ModerationEvent) error
}

// ConfessionService drives the anonymous-submission workflow: private
// intake with confirmation, then a reversible accept/reject/undo state
// machine on the moderation channel. It holds no state between events;
// the store and the platform's own messages are the record.
type ConfessionService struct {
	session     platform.Session
	submissions confessionSubmissions
	sequence    confessionSequencer
	archive     ModerationArchive
	cfg         config.ConfessionConfig
	logger      *zap.Logger
	metrics     *MetricsService
}

// NewConfessionService constructs a ConfessionService. archive and
// metrics may be nil.
func NewConfessionService(session platform.Session, submissions confessionSubmissions, sequence confessionSequencer, archive ModerationArchive, cfg config.ConfessionConfig, logger *zap.Logger, metrics *MetricsService) *ConfessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfessionService{
		session:     session,
		submissions: submissions,
		sequence:    sequence,
		archive:     archive,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
	}
}

// Intake handles a private message: prompt for confirmation, wait for
// the submitter's reaction, then forward the content to the moderation
// channel. A missed confirmation cancels silently; side effects already
// performed are never rolled back.
func (s *ConfessionService) Intake(ctx context.Context, evt platform.Event) {
	if !evt.Direct || evt.AuthorBot {
		return
	}

	verify, err := s.session.Send(ctx, evt.ChannelID, s.cfg.VerifyMessage)
	if err != nil {
		s.logger.Error("send verification prompt", zap.Error(err))
		return
	}
	if err := s.session.React(ctx, evt.ChannelID, verify.ID, emojiConfirm); err != nil {
		s.logger.Warn("attach confirmation reaction", zap.Error(err))
	}

	confirmed, err := s.session.AwaitReaction(ctx, evt.ChannelID, verify.ID, s.cfg.VerifyTimeout,
		func(userID, emoji string) bool {
			return userID == evt.AuthorID && emoji == emojiConfirm
		})
	if err != nil {
		s.logger.Error("await confirmation", zap.Error(err))
		return
	}
	if !confirmed {
		if _, err := s.session.Send(ctx, evt.ChannelID, s.cfg.CancelMessage); err != nil {
			s.logger.Warn("send cancellation notice", zap.Error(err))
		}
		return
	}

	posted, err := s.session.SendEmbed(ctx, s.cfg.ModerationChannelID, platform.Embed{Description: evt.Content})
	if err != nil {
		s.logger.Error("forward submission to moderation", zap.Error(err))
		return
	}
	if err := s.submissions.Create(ctx, posted.ID); err != nil {
		s.logger.Error("record submission status", zap.String("message_id", posted.ID), zap.Error(err))
	}
	if err := s.session.React(ctx, s.cfg.ModerationChannelID, posted.ID, emojiAccept); err != nil {
		s.logger.Warn("attach accept reaction", zap.Error(err))
	}
	if err := s.session.React(ctx, s.cfg.ModerationChannelID, posted.ID, emojiReject); err != nil {
		s.logger.Warn("attach reject reaction", zap.Error(err))
	}
	// The receipt is best effort: the submission is already queued.
	if _, err := s.session.Send(ctx, evt.ChannelID, s.cfg.SentMessage); err != nil {
		s.logger.Warn("send receipt", zap.Error(err))
	}
}

// OnModerationReaction applies one reviewer reaction on the moderation
// channel. Unknown emojis and bot reactors are ignored; guarded
// transitions that do not apply are silent no-ops.
func (s *ConfessionService) OnModerationReaction(ctx context.Context, evt platform.Event) {
	if evt.ChannelID != s.cfg.ModerationChannelID || evt.AuthorBot {
		return
	}
	switch evt.Emoji {
	case emojiAccept, emojiReject, emojiUndo:
	default:
		return
	}

	// Reaction events can arrive as partial payloads; fetch the full
	// message and drop the event if that fails.
	msg, err := s.session.Message(ctx, evt.ChannelID, evt.MessageID)
	if err != nil {
		s.logger.Error("fetch moderation message", zap.String("message_id", evt.MessageID), zap.Error(err))
		return
	}

	switch evt.Emoji {
	case emojiReject:
		s.reject(ctx, msg, evt.AuthorName)
	case emojiAccept:
		s.accept(ctx, msg, evt.AuthorName)
	case emojiUndo:
		s.undo(ctx, msg, evt.AuthorName)
	}
}

func (s *ConfessionService) reject(ctx context.Context, msg *platform.Message, actor string) {
	// Re-rejecting is allowed; rejecting a published submission is not.
	applied, err := s.submissions.Transition(ctx, msg.ID, models.StatusRejected,
		models.StatusReviewable, models.StatusRejected)
	if err != nil {
		s.logger.Error("reject transition", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	if err := annotateHistory(ctx, s.session, msg, models.ActionRejected, actor); err != nil {
		s.logger.Warn("annotate rejection", zap.String("message_id", msg.ID), zap.Error(err))
	}
	if err := s.session.React(ctx, msg.ChannelID, msg.ID, emojiUndo); err != nil {
		s.logger.Warn("attach undo reaction", zap.Error(err))
	}

	s.observeModeration("rejected")
	s.recordAudit(ctx, msg.ID, "rejected", actor, "")
}

func (s *ConfessionService) accept(ctx context.Context, msg *platform.Message, actor string) {
	// Idempotency guard: only reviewable submissions can be accepted, so
	// double-accepts and accept-after-reject are no-ops.
	applied, err := s.submissions.Transition(ctx, msg.ID, models.StatusAccepted, models.StatusReviewable)
	if err != nil {
		s.logger.Error("accept transition", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	if err := annotateHistory(ctx, s.session, msg, models.ActionAccepted, actor); err != nil {
		s.logger.Warn("annotate acceptance", zap.String("message_id", msg.ID), zap.Error(err))
	}

	day, n, err := s.sequence.Next(ctx)
	if err != nil {
		// The submission is already accepted; publication is lost but
		// state stays consistent.
		s.logger.Error("next publication number", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	title := fmt.Sprintf("%s #%d", day, n)

	embed := platform.Embed{Title: title, Description: msg.Content}
	if len(msg.Embeds) > 0 {
		embed = msg.Embeds[0]
		embed.Title = title
	}
	if _, err := s.session.SendEmbed(ctx, s.cfg.OutputChannelID, embed); err != nil {
		s.logger.Error("publish submission", zap.String("message_id", msg.ID), zap.Error(err))
	} else if s.metrics != nil {
		s.metrics.Published()
	}

	if err := s.session.RemoveAllReactions(ctx, msg.ChannelID, msg.ID); err != nil {
		s.logger.Warn("strip reactions", zap.Error(err))
	}
	if err := s.session.React(ctx, msg.ChannelID, msg.ID, emojiSent); err != nil {
		s.logger.Warn("attach sent marker", zap.Error(err))
	}

	s.observeModeration("accepted")
	s.recordAudit(ctx, msg.ID, "accepted", actor, title)
}

func (s *ConfessionService) undo(ctx context.Context, msg *platform.Message, actor string) {
	applied, err := s.submissions.Transition(ctx, msg.ID, models.StatusReviewable, models.StatusRejected)
	if err != nil {
		s.logger.Error("undo transition", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	if err := annotateHistory(ctx, s.session, msg, models.ActionReset, actor); err != nil {
		s.logger.Warn("annotate reset", zap.String("message_id", msg.ID), zap.Error(err))
	}
	if err := s.session.RemoveAllReactions(ctx, msg.ChannelID, msg.ID); err != nil {
		s.logger.Warn("strip reactions", zap.Error(err))
	}
	if err := s.session.React(ctx, msg.ChannelID, msg.ID, emojiAccept); err != nil {
		s.logger.Warn("attach accept reaction", zap.Error(err))
	}
	if err := s.session.React(ctx, msg.ChannelID, msg.ID, emojiReject); err != nil {
		s.logger.Warn("attach reject reaction", zap.Error(err))
	}

	s.observeModeration("reset")
	s.recordAudit(ctx, msg.ID, "reset", actor, "")
}

func (s *ConfessionService) observeModeration(action string) {
	if s.metrics != nil {
		s.metrics.ModerationApplied(action)
	}
}

func (s *ConfessionService) recordAudit(ctx context.Context, messageID, action, actor, title string) {
	if s.archive == nil {
		return
	}
	evt := &models.ModerationEvent{MessageID: messageID, Action: action, Actor: actor, Title: title}
	if err := s.archive.Record(ctx, evt); err != nil {
		s.logger.Warn("archive moderation event", zap.String("message_id", messageID), zap.Error(err))
	}
}
