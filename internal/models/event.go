package models

import "time"

// ShoutoutDirection filters shoutout counts relative to the resolved scope.
type ShoutoutDirection string

const (
	DirectionGiven    ShoutoutDirection = "given"
	DirectionReceived ShoutoutDirection = "received"
	DirectionAll      ShoutoutDirection = "all"
)

// Valid reports whether the direction is a supported filter value.
func (d ShoutoutDirection) Valid() bool {
	switch d {
	case DirectionGiven, DirectionReceived, DirectionAll:
		return true
	}
	return false
}

// ShoutoutVisibility filters shoutout counts by audience.
type ShoutoutVisibility string

const (
	VisibilityPublic  ShoutoutVisibility = "public"
	VisibilityPrivate ShoutoutVisibility = "private"
	VisibilityAll     ShoutoutVisibility = "all"
)

// Valid reports whether the visibility is a supported filter value.
func (v ShoutoutVisibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityAll:
		return true
	}
	return false
}

// CheckinRecord is a submitted weekly check-in. SubmittedAt and DueAt are set
// once at submission and never rewritten, even when the check-in is amended.
type CheckinRecord struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	UserID         string    `db:"user_id" json:"userId"`
	Mood           int       `db:"mood" json:"mood"`
	WeekOf         time.Time `db:"week_of" json:"weekOf"`
	SubmittedAt    time.Time `db:"submitted_at" json:"submittedAt"`
	DueAt          time.Time `db:"due_at" json:"dueAt"`
}

// ReviewRecord is a manager review of a check-in. It carries timing only.
type ReviewRecord struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	ReviewerID     string    `db:"reviewer_id" json:"reviewerId"`
	CheckinID      string    `db:"checkin_id" json:"checkinId"`
	ReviewedAt     time.Time `db:"reviewed_at" json:"reviewedAt"`
	DueAt          time.Time `db:"due_at" json:"dueAt"`
}

// ShoutoutRecord is a peer recognition event.
type ShoutoutRecord struct {
	ID             string             `db:"id" json:"id"`
	OrganizationID string             `db:"organization_id" json:"organizationId"`
	SenderID       string             `db:"sender_id" json:"senderId"`
	RecipientID    string             `db:"recipient_id" json:"recipientId"`
	Visibility     ShoutoutVisibility `db:"visibility" json:"visibility"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
}
