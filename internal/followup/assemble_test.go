package followup

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/linnemanlabs/nudge/internal/caserec"
)

func assembleInput(t *testing.T) (*Grouping, []caserec.Record) {
	t.Helper()
	records := []caserec.Record{
		rec("C-1", "Fadi Hanna", day(2023, 1, 1)),
		rec("C-2", "Fadi Hanna", day(2023, 2, 1)),
		rec("C-3", "Fadi Hanna", day(2022, 12, 1)),
		rec("C-4", "Fadi Hanna", day(2023, 3, 1)),
		rec("C-5", "Fadi Hanna", day(2022, 11, 1)),
		rec("C-6", "Jana Sweid", day(2023, 1, 15)),
		rec("C-7", "Abdo Khoury", day(2020, 1, 1)),
	}
	return GroupByOwner(records, testDirectory(t)), records
}

func TestAssemble_OnePerEligibleOwner(t *testing.T) {
	t.Parallel()

	g, _ := assembleInput(t)
	now := time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)

	intents := Assemble(g, testDirectory(t), AssembleOptions{GeneratedAt: now})

	// Fadi Hanna and Jana Sweid; Abdo Khoury (escalation contact)
	// suppressed despite having the oldest case of all.
	if len(intents) != 2 {
		t.Fatalf("intents = %d, want 2", len(intents))
	}
	if intents[0].Owner != "Fadi Hanna" || intents[1].Owner != "Jana Sweid" {
		t.Errorf("owner order = %s, %s; want Fadi Hanna, Jana Sweid", intents[0].Owner, intents[1].Owner)
	}

	fadi := intents[0]
	wantRecipients := []string{"Akhoury@info-sys.com", "FHanna@info-sys.com"}
	if !reflect.DeepEqual(fadi.Recipients, wantRecipients) {
		t.Errorf("Recipients = %v, want %v", fadi.Recipients, wantRecipients)
	}
	if fadi.TotalCases != 5 {
		t.Errorf("TotalCases = %d, want 5", fadi.TotalCases)
	}
	wantTop := []time.Time{day(2022, 11, 1), day(2022, 12, 1), day(2023, 1, 1)}
	for i, want := range wantTop {
		if !fadi.TopCases[i].CreatedAt.Equal(want) {
			t.Errorf("TopCases[%d].CreatedAt = %v, want %v", i, fadi.TopCases[i].CreatedAt, want)
		}
	}
	if !fadi.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v", fadi.GeneratedAt, now)
	}
	if fadi.Delivery != DeliveryStaged {
		t.Errorf("Delivery = %q, want staged", fadi.Delivery)
	}
}

func TestAssemble_EscalationContactNeverNotified(t *testing.T) {
	t.Parallel()

	g, _ := assembleInput(t)
	intents := Assemble(g, testDirectory(t), AssembleOptions{GeneratedAt: time.Now()})

	for _, intent := range intents {
		if intent.Owner == "Abdo Khoury" {
			t.Error("escalation contact received an intent about their own cases")
		}
	}
}

func TestAssemble_OwnerFilter(t *testing.T) {
	t.Parallel()

	g, _ := assembleInput(t)
	intents := Assemble(g, testDirectory(t), AssembleOptions{
		OwnerFilter: "JSweid@info-sys.com",
		GeneratedAt: time.Now(),
	})

	if len(intents) != 1 {
		t.Fatalf("intents = %d, want 1 with owner filter", len(intents))
	}
	if intents[0].Owner != "Jana Sweid" {
		t.Errorf("Owner = %q, want Jana Sweid", intents[0].Owner)
	}
	found := false
	for _, r := range intents[0].Recipients {
		if r == "JSweid@info-sys.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("Recipients = %v, want to include the filter address", intents[0].Recipients)
	}
}

func TestAssemble_OwnerFilterNoMatch(t *testing.T) {
	t.Parallel()

	g, _ := assembleInput(t)
	intents := Assemble(g, testDirectory(t), AssembleOptions{
		OwnerFilter: "nobody@info-sys.com",
		GeneratedAt: time.Now(),
	})

	if len(intents) != 0 {
		t.Errorf("intents = %d, want 0 for unmatched filter", len(intents))
	}
}

func TestAssemble_ByteIdentOutputAcrossRuns(t *testing.T) {
	t.Parallel()

	g1, records := assembleInput(t)
	g2 := GroupByOwner(records, testDirectory(t))
	now := time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)

	first := Assemble(g1, testDirectory(t), AssembleOptions{GeneratedAt: now})
	second := Assemble(g2, testDirectory(t), AssembleOptions{GeneratedAt: now})

	b1, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b2, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b1) != string(b2) {
		t.Error("identical input produced different intent sequences")
	}
}

func TestAssemble_SkipsEmptyGroups(t *testing.T) {
	t.Parallel()

	g := &Grouping{Groups: map[string]*OwnerGroup{
		"Fadi Hanna": {Owner: "Fadi Hanna"},
	}}

	intents := Assemble(g, testDirectory(t), AssembleOptions{GeneratedAt: time.Now()})
	if len(intents) != 0 {
		t.Errorf("intents = %d, want 0 for owner with no cases", len(intents))
	}
}
