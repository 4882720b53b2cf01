package followup

import (
	"errors"
	"reflect"
	"testing"

	"github.com/linnemanlabs/nudge/internal/directory"
)

func TestResolve_RegularOwner(t *testing.T) {
	t.Parallel()

	decision, err := Resolve("Fadi Hanna", testDirectory(t))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !decision.Eligible {
		t.Error("expected regular owner to be eligible")
	}

	// Owner plus escalation contact, nothing else.
	want := []string{"Akhoury@info-sys.com", "FHanna@info-sys.com"}
	if !reflect.DeepEqual(decision.Recipients, want) {
		t.Errorf("Recipients = %v, want %v", decision.Recipients, want)
	}
}

func TestResolve_EscalationContactSuppressed(t *testing.T) {
	t.Parallel()

	decision, err := Resolve("Abdo Khoury", testDirectory(t))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision.Eligible {
		t.Error("escalation contact must not be eligible for self-notification")
	}
	if len(decision.Recipients) != 0 {
		t.Errorf("Recipients = %v, want empty", decision.Recipients)
	}
}

func TestResolve_UnknownOwner(t *testing.T) {
	t.Parallel()

	_, err := Resolve("Unknown Person", testDirectory(t))
	var ue *directory.UnknownOwnerError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *directory.UnknownOwnerError", err)
	}
}

func TestResolve_DedupesCoincidingAddresses(t *testing.T) {
	t.Parallel()

	// Misconfigured directory where an owner shares the escalation
	// address. Defensive invariant: recipients stay a set.
	d, err := directory.New([]directory.Entry{
		{Name: "Fadi Hanna", Email: "shared@info-sys.com"},
		{Name: "Abdo Khoury", Email: "shared@info-sys.com", Escalation: true},
	})
	if err != nil {
		t.Fatalf("directory.New: %v", err)
	}

	decision, err := Resolve("Fadi Hanna", d)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(decision.Recipients) != 1 {
		t.Errorf("Recipients = %v, want single deduplicated address", decision.Recipients)
	}
	if decision.Recipients[0] != "shared@info-sys.com" {
		t.Errorf("Recipients[0] = %q, want shared@info-sys.com", decision.Recipients[0])
	}
}

func TestResolve_ExactIdentityMatch(t *testing.T) {
	t.Parallel()

	// Identity comparison against the escalation contact is exact, so
	// a differently-cased identity simply fails lookup rather than
	// being treated as the contact.
	_, err := Resolve("abdo khoury", testDirectory(t))
	if err == nil {
		t.Fatal("expected lookup failure for non-exact identity")
	}
}
