package followup

import (
	"slices"
	"strings"

	"github.com/linnemanlabs/nudge/internal/caserec"
	"github.com/linnemanlabs/nudge/internal/directory"
)

// MaxTopCases is how many of an owner's oldest cases go into a
// notification. Owners with fewer open cases get fewer; never padded.
const MaxTopCases = 3

// Grouping is the output of partitioning one export by owner.
type Grouping struct {
	// Groups maps owner identity to that owner's cases. Only owners
	// resolvable in the directory appear here.
	Groups map[string]*OwnerGroup

	// UnresolvedOwners lists identities from the export with no
	// directory entry, sorted and deduplicated. Their cases are in
	// no group; the caller reports them once per run.
	UnresolvedOwners []string

	// UnresolvedCases counts the records excluded that way.
	UnresolvedCases int
}

// GroupByOwner partitions records by owner identity and computes each
// owner's ranked subset. Output is deterministic for a given input set
// regardless of input ordering: cases sort oldest-first by creation
// time with case ID ascending as tie-break, and TopCases is always a
// prefix of the sorted sequence.
func GroupByOwner(records []caserec.Record, dir *directory.Directory) *Grouping {
	g := &Grouping{Groups: make(map[string]*OwnerGroup)}
	unresolved := make(map[string]bool)

	for _, rec := range records {
		if _, err := dir.Lookup(rec.Owner); err != nil {
			unresolved[rec.Owner] = true
			g.UnresolvedCases++
			continue
		}

		og, ok := g.Groups[rec.Owner]
		if !ok {
			og = &OwnerGroup{Owner: rec.Owner}
			g.Groups[rec.Owner] = og
		}
		og.AllCases = append(og.AllCases, rec)
	}

	for _, og := range g.Groups {
		sortCases(og.AllCases)
		og.TopCases = og.AllCases[:min(MaxTopCases, len(og.AllCases))]
	}

	for owner := range unresolved {
		g.UnresolvedOwners = append(g.UnresolvedOwners, owner)
	}
	slices.Sort(g.UnresolvedOwners)

	return g
}

// sortCases orders oldest-first by creation time, then case ID.
func sortCases(cases []caserec.Record) {
	slices.SortStableFunc(cases, func(a, b caserec.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.CaseID, b.CaseID)
	})
}
