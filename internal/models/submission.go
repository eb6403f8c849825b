package models

import "time"

// SubmissionStatus is the explicit review state of a moderation-channel
// submission. It is the source of truth; the audit-trail line rendered
// into the message text is display only.
type SubmissionStatus string

const (
	StatusReviewable SubmissionStatus = "reviewable"
	StatusRejected   SubmissionStatus = "rejected"
	StatusAccepted   SubmissionStatus = "accepted"
)

// ModerationAction names a reviewer transition as it appears in the
// visible audit trail.
type ModerationAction string

const (
	ActionRejected ModerationAction = "Rejected"
	ActionAccepted ModerationAction = "Accepted"
	ActionReset    ModerationAction = "Reset"
)

// ModerationEvent is one row of the durable audit archive.
type ModerationEvent struct {
	ID        int64     `db:"id" json:"id"`
	MessageID string    `db:"message_id" json:"message_id"`
	Action    string    `db:"action" json:"action"`
	Actor     string    `db:"actor" json:"actor"`
	Title     string    `db:"title" json:"title,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
