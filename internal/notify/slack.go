package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
)

// SlackCard is the content of one order notification.
type SlackCard struct {
	Customer string
	Agent    string
	Provider string
	Package  string
	Email    string
	Phone    string
	Note     string
}

type SlackNotifier struct {
	webhookURL string
	http       *http.Client
}

func NewSlackNotifier(webhookURL string, c *http.Client) *SlackNotifier {
	if c == nil {
		c = http.DefaultClient
	}
	return &SlackNotifier{webhookURL: webhookURL, http: c}
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Configured() bool { return n.webhookURL != "" }

func (n *SlackNotifier) Run(ctx context.Context, s *domain.Submission) error {
	card := SlackCard{
		Customer: s.CustomerName,
		Agent:    s.AgentName,
		Provider: s.SelectedProvider,
		Package:  s.SelectedPackage,
		Email:    s.Email,
		Phone:    orderform.FormatPhone(s.Phone),
	}
	if s.ForceProvider {
		card.Note = fmt.Sprintf(":warning: provider forced outside matched coverage for ZIP %s", s.ZipCode)
	}
	return n.Post(ctx, card)
}

// Post sends a card to the webhook.
func (n *SlackNotifier) Post(ctx context.Context, c SlackCard) error {
	if !n.Configured() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(slackMessage(c))
	if err != nil {
		return Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(resp.StatusCode, fmt.Errorf("slack webhook %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	return nil
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

func slackMessage(c SlackCard) map[string]any {
	field := func(label, v string) slackText {
		return slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", label, v)}
	}
	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "🚨 New Internet Order Form"}},
		{Type: "section", Fields: []slackText{
			field("Customer", c.Customer),
			field("Agent", c.Agent),
			field("Provider", c.Provider),
			field("Package", c.Package),
			field("Email", c.Email),
			field("Phone", c.Phone),
		}},
	}
	if c.Note != "" {
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: c.Note}})
	}
	return map[string]any{
		"text":   "🚨 New Form Submission!",
		"blocks": blocks,
	}
}
