package followup

import (
	"slices"
	"time"

	"github.com/linnemanlabs/nudge/internal/directory"
)

// AssembleOptions narrow or timestamp an assembly pass.
type AssembleOptions struct {
	// OwnerFilter, when set, restricts output to the single owner
	// whose resolved contact address matches it exactly. Matching is
	// at the address level, not the identity level.
	OwnerFilter string

	// GeneratedAt stamps every intent; the Service passes the run
	// creation time so a run's intents share one timestamp.
	GeneratedAt time.Time
}

// Assemble combines a grouping with recipient resolution into one
// notification intent per eligible owner. Owners iterate in identity
// order so output is byte-stable across runs on identical input.
// Assembly is pure: it never sends or persists anything, so a caller
// gets dry-run behavior by simply not handing the result to a sink.
func Assemble(g *Grouping, dir *directory.Directory, opts AssembleOptions) []NotificationIntent {
	owners := make([]string, 0, len(g.Groups))
	for owner := range g.Groups {
		owners = append(owners, owner)
	}
	slices.Sort(owners)

	var intents []NotificationIntent
	for _, owner := range owners {
		og := g.Groups[owner]

		// No open cases means nothing to notify about.
		if len(og.TopCases) == 0 {
			continue
		}

		decision, err := Resolve(owner, dir)
		if err != nil {
			// Unresolvable owners were already diverted into the
			// unresolved bucket during grouping.
			continue
		}
		if !decision.Eligible {
			continue
		}

		if opts.OwnerFilter != "" {
			entry, err := dir.Lookup(owner)
			if err != nil || entry.Email != opts.OwnerFilter {
				continue
			}
		}

		intents = append(intents, NotificationIntent{
			Owner:       owner,
			Recipients:  decision.Recipients,
			TopCases:    og.TopCases,
			TotalCases:  len(og.AllCases),
			GeneratedAt: opts.GeneratedAt,
			Delivery:    DeliveryStaged,
		})
	}
	return intents
}
