package followup

import (
	"time"

	"github.com/linnemanlabs/nudge/internal/caserec"
)

// Status tracks where a run is in its lifecycle.
type Status string

const (
	// StatusPending means created, not yet processed
	StatusPending Status = "pending"

	// StatusInProgress means delivery or digest work is still running
	StatusInProgress Status = "in_progress"

	// StatusComplete means finished
	StatusComplete Status = "complete"

	// StatusFailed means the run could not be finished
	StatusFailed Status = "failed"
)

// Delivery outcomes for a single intent.
const (
	DeliveryStaged = "staged"
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// OwnerGroup is one owner's slice of a run: every open case for that
// owner plus the ranked subset that goes into the notification.
// Recomputed each run, never persisted on its own.
type OwnerGroup struct {
	Owner    string
	AllCases []caserec.Record
	// TopCases is a prefix of AllCases after sorting: the up-to-3
	// oldest cases by creation time, ties broken by case ID.
	TopCases []caserec.Record
}

// RecipientDecision is the resolved routing for one owner.
type RecipientDecision struct {
	Owner string
	// Eligible is false when the owner is the escalation contact:
	// self-notification is suppressed entirely.
	Eligible bool
	// Recipients holds the owner's address and the escalation
	// address, deduplicated and sorted.
	Recipients []string
}

// NotificationIntent is the fully-resolved decision of what one owner's
// notification should contain and who receives it. Created once per
// eligible owner per run and never mutated by the core; the delivery
// fields are bookkeeping written by the Service as sinks report back.
type NotificationIntent struct {
	Owner         string           `json:"owner"`
	Recipients    []string         `json:"recipients"`
	TopCases      []caserec.Record `json:"top_cases"`
	TotalCases    int              `json:"total_cases"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Delivery      string           `json:"delivery"`
	DeliveryError string           `json:"delivery_error,omitempty"`
}

// Run is the record of one processing run over a case export.
type Run struct {
	ID               string               `json:"id"`
	Status           Status               `json:"status"`
	TotalCases       int                  `json:"total_cases"`
	OwnerCount       int                  `json:"owner_count"`
	UnresolvedOwners []string             `json:"unresolved_owners,omitempty"`
	OwnerFilter      string               `json:"owner_filter,omitempty"`
	Deliver          bool                 `json:"deliver"`
	Intents          []NotificationIntent `json:"intents"`
	Digest           string               `json:"digest,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	CompletedAt      time.Time            `json:"completed_at,omitempty"`
	Duration         float64              `json:"duration_seconds,omitempty"`
}
