package followup

import (
	"slices"

	"github.com/linnemanlabs/nudge/internal/directory"
)

// Resolve decides the recipient set for one owner's notification.
//
// The escalation contact never receives a notification about their own
// cases: their own identity resolves to an ineligible decision with no
// recipients. Every other owner gets exactly two recipients, their own
// address and the escalation address, deduplicated in case the two
// coincide through misconfiguration. Identity comparison is exact.
//
// Returns *directory.UnknownOwnerError when the identity has no
// directory entry.
func Resolve(owner string, dir *directory.Directory) (RecipientDecision, error) {
	entry, err := dir.Lookup(owner)
	if err != nil {
		return RecipientDecision{}, err
	}

	esc := dir.EscalationContact()
	if entry.Name == esc.Name {
		return RecipientDecision{Owner: owner}, nil
	}

	recipients := []string{entry.Email}
	if esc.Email != entry.Email {
		recipients = append(recipients, esc.Email)
	}
	slices.Sort(recipients)

	return RecipientDecision{
		Owner:      owner,
		Eligible:   true,
		Recipients: recipients,
	}, nil
}
