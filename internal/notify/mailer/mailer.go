// Package mailer delivers follow-up notifications over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/nudge/internal/followup"
)

// Options configure the SMTP sender.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender address, e.g. crm-alerts@info-sys.com
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer builds and sends one reminder message per notification intent.
type Mailer struct {
	addr   string
	from   string
	auth   smtp.Auth
	logger log.Logger

	send sendFunc // swapped out in tests
}

// New creates an SMTP mailer. Auth is skipped when no username is set,
// for relays that trust the network instead.
func New(opts Options, logger log.Logger) (*Mailer, error) {
	if opts.Host == "" || opts.Port == 0 {
		return nil, xerrors.New("smtp host and port are required")
	}
	if opts.From == "" {
		return nil, xerrors.New("smtp from address is required")
	}
	if logger == nil {
		logger = log.Nop()
	}

	var auth smtp.Auth
	if opts.Username != "" {
		auth = smtp.PlainAuth("", opts.Username, opts.Password, opts.Host)
	}

	return &Mailer{
		addr:   fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		from:   opts.From,
		auth:   auth,
		logger: logger,
		send:   smtp.SendMail,
	}, nil
}

// Deliver sends the reminder for one intent to its full recipient set.
func (m *Mailer) Deliver(ctx context.Context, intent *followup.NotificationIntent) error {
	if len(intent.Recipients) == 0 {
		return xerrors.New("intent has no recipients")
	}

	msg, err := m.buildMessage(intent)
	if err != nil {
		return fmt.Errorf("build message for %s: %w", intent.Owner, err)
	}

	start := time.Now()
	if err := m.send(m.addr, m.auth, m.from, intent.Recipients, msg); err != nil {
		return fmt.Errorf("smtp send to %v: %w", intent.Recipients, err)
	}

	m.logger.Info(ctx, "reminder sent",
		"owner", intent.Owner,
		"recipients", intent.Recipients,
		"bytes", len(msg),
		"duration", time.Since(start).Seconds(),
	)
	return nil
}

// buildMessage renders the RFC 5322 reminder for an intent.
func (m *Mailer) buildMessage(intent *followup.NotificationIntent) ([]byte, error) {
	from, err := mail.ParseAddress(m.from)
	if err != nil {
		return nil, fmt.Errorf("parse from address: %w", err)
	}

	to := make([]*mail.Address, len(intent.Recipients))
	for i, r := range intent.Recipients {
		to[i] = &mail.Address{Address: r}
	}

	var h mail.Header
	h.SetDate(intent.GeneratedAt)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	h.SetSubject(fmt.Sprintf("Follow-up needed: %d open case(s) assigned to %s", intent.TotalCases, intent.Owner))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}
	if _, err := io.WriteString(w, renderBody(intent)); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	return buf.Bytes(), nil
}

func renderBody(intent *followup.NotificationIntent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hi %s,\n\n", intent.Owner)
	fmt.Fprintf(&b, "You have %d open case(s). These are the oldest ones waiting on you:\n\n", intent.TotalCases)

	for _, c := range intent.TopCases {
		fmt.Fprintf(&b, "  - %s: %s (%s priority, opened %s, %d days old)\n",
			c.CaseID, c.Title, c.Priority,
			c.CreatedAt.Format("2006-01-02"),
			c.AgeDays(intent.GeneratedAt),
		)
	}

	if intent.TotalCases > len(intent.TopCases) {
		fmt.Fprintf(&b, "\n...and %d more.\n", intent.TotalCases-len(intent.TopCases))
	}

	b.WriteString("\nPlease update or close them as soon as you can.\n")
	return b.String()
}
