package followup

import "context"

// Store is the persistence interface for run records and their intents.
type Store interface {
	Get(ctx context.Context, id string) (*Run, bool, error)
	Put(ctx context.Context, run *Run) error
}
