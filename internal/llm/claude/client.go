// Package claude generates run digests with the Anthropic API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/nudge/internal/followup"
)

const (
	defaultModel = "claude-sonnet-4-20250514"
	maxTokens    = 1024
)

const systemPrompt = `You write short operational digests for a CRM case follow-up service.
Given one run's statistics and per-owner reminder intents, write a single
paragraph for an ops channel: who was nudged, how stale their oldest cases
are, and anything that needs human attention (unresolved owners, failed
deliveries). Be factual and terse. Do not invent case details.`

// Client produces natural-language run digests. It implements
// followup.Summarizer.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a digest client. An empty model selects the default.
func New(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Summarize asks the model for a one-paragraph digest of a finished run.
func (c *Client) Summarize(ctx context.Context, run *followup.Run) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(run))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	digest := strings.TrimSpace(b.String())
	if digest == "" {
		return "", fmt.Errorf("claude: response contained no text (stop reason %s)", msg.StopReason)
	}
	return digest, nil
}

// buildPrompt renders a run as deterministic plain text for the model.
func buildPrompt(run *followup.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Follow-up run %s\n", run.ID)
	fmt.Fprintf(&b, "Cases in export: %d\n", run.TotalCases)
	fmt.Fprintf(&b, "Owners with open cases: %d\n", run.OwnerCount)
	fmt.Fprintf(&b, "Reminders assembled: %d\n", len(run.Intents))
	if run.Deliver {
		b.WriteString("Delivery: enabled\n")
	} else {
		b.WriteString("Delivery: dry run, reminders staged only\n")
	}

	if len(run.UnresolvedOwners) > 0 {
		fmt.Fprintf(&b, "Owners missing from the directory: %s\n", strings.Join(run.UnresolvedOwners, ", "))
	}

	for i := range run.Intents {
		intent := &run.Intents[i]
		fmt.Fprintf(&b, "\nOwner %s: %d open case(s), delivery %s", intent.Owner, intent.TotalCases, intent.Delivery)
		if intent.DeliveryError != "" {
			fmt.Fprintf(&b, " (%s)", intent.DeliveryError)
		}
		b.WriteString("\n")
		for _, c := range intent.TopCases {
			fmt.Fprintf(&b, "  - %s: %s, %s priority, %d days old\n",
				c.CaseID, c.Title, c.Priority, c.AgeDays(intent.GeneratedAt))
		}
	}

	return b.String()
}
