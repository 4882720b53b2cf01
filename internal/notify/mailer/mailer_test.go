package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/nudge/internal/caserec"
	"github.com/linnemanlabs/nudge/internal/followup"
)

func testIntent() *followup.NotificationIntent {
	return &followup.NotificationIntent{
		Owner:      "Fadi Hanna",
		Recipients: []string{"Akhoury@info-sys.com", "FHanna@info-sys.com"},
		TopCases: []caserec.Record{
			{CaseID: "C-1", Title: "login broken", Owner: "Fadi Hanna", CreatedAt: time.Date(2022, 11, 1, 0, 0, 0, 0, time.UTC), Priority: caserec.PriorityHigh},
			{CaseID: "C-2", Title: "slow reports", Owner: "Fadi Hanna", CreatedAt: time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC), Priority: caserec.PriorityMedium},
		},
		TotalCases:  5,
		GeneratedAt: time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC),
		Delivery:    followup.DeliveryStaged,
	}
}

func newTestMailer(t *testing.T, send sendFunc) *Mailer {
	t.Helper()
	m, err := New(Options{
		Host:     "smtp.info-sys.com",
		Port:     587,
		Username: "crm-alerts",
		Password: "pw",
		From:     "crm-alerts@info-sys.com",
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if send != nil {
		m.send = send
	}
	return m
}

func TestNew_MissingHost(t *testing.T) {
	t.Parallel()

	_, err := New(Options{From: "x@y.com"}, nil)
	if err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestNew_MissingFrom(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Host: "smtp.info-sys.com", Port: 587}, nil)
	if err == nil {
		t.Fatal("expected error for missing from address")
	}
}

func TestDeliver_SendsToAllRecipients(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)
	m := newTestMailer(t, func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	})

	if err := m.Deliver(context.Background(), testIntent()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotAddr != "smtp.info-sys.com:587" {
		t.Errorf("addr = %q, want smtp.info-sys.com:587", gotAddr)
	}
	if gotFrom != "crm-alerts@info-sys.com" {
		t.Errorf("from = %q, want crm-alerts@info-sys.com", gotFrom)
	}
	if len(gotTo) != 2 || gotTo[0] != "Akhoury@info-sys.com" || gotTo[1] != "FHanna@info-sys.com" {
		t.Errorf("to = %v, want owner plus escalation contact", gotTo)
	}
	if len(gotMsg) == 0 {
		t.Fatal("expected a non-empty message")
	}
}

func TestDeliver_SendError(t *testing.T) {
	t.Parallel()

	m := newTestMailer(t, func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})

	err := m.Deliver(context.Background(), testIntent())
	if err == nil {
		t.Fatal("expected error from failed send")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want wrapped smtp error", err)
	}
}

func TestDeliver_NoRecipients(t *testing.T) {
	t.Parallel()

	m := newTestMailer(t, func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send must not be called without recipients")
		return nil
	})

	intent := testIntent()
	intent.Recipients = nil
	if err := m.Deliver(context.Background(), intent); err == nil {
		t.Fatal("expected error for intent without recipients")
	}
}

func TestBuildMessage_HeadersAndBody(t *testing.T) {
	t.Parallel()

	m := newTestMailer(t, nil)

	msg, err := m.buildMessage(testIntent())
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	raw := string(msg)

	for _, want := range []string{
		"From: <crm-alerts@info-sys.com>",
		"To: <Akhoury@info-sys.com>, <FHanna@info-sys.com>",
		"Subject: Follow-up needed: 5 open case(s) assigned to Fadi Hanna",
		"Hi Fadi Hanna,",
		"C-1: login broken (High priority, opened 2022-11-01, 151 days old)",
		"C-2: slow reports (Medium priority, opened 2022-12-01, 121 days old)",
		"...and 3 more.",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q\n%s", want, raw)
		}
	}
}

func TestBuildMessage_NoOverflowLineWhenAllCasesShown(t *testing.T) {
	t.Parallel()

	m := newTestMailer(t, nil)
	intent := testIntent()
	intent.TotalCases = len(intent.TopCases)

	msg, err := m.buildMessage(intent)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	if strings.Contains(string(msg), "more.") {
		t.Error("overflow line present although all cases are listed")
	}
}
