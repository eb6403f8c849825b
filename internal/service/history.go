package service

import (
	"context"
	"fmt"

	"github.com/confidant-bot/confidant/internal/models"
	"github.com/confidant-bot/confidant/internal/platform"
)

// annotateHistory prepends the visible audit-trail line to a moderation
// message, e.g. "Accepted by alice". Lines accumulate across
// transitions so reviewers can read the full history in place. The text
// is display only; review state lives in the submission store.
func annotateHistory(ctx context.Context, session platform.Session, msg *platform.Message, action models.ModerationAction, actor string) error {
	if actor == "" {
		actor = "Unknown"
	}
	content := fmt.Sprintf("%s by %s\n%s", action, actor, msg.Content)
	if err := session.Edit(ctx, msg.ChannelID, msg.ID, content); err != nil {
		return err
	}
	msg.Content = content
	return nil
}
