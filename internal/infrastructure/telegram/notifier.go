package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier posts diagnosis outcomes to a Telegram chat via bot API.
type Notifier struct {
	apiBase      string
	botToken     string
	chatID       string
	failuresOnly bool
	client       *http.Client
}

var _ ports.OutcomePublisher = (*Notifier)(nil)

// Option tweaks a Notifier.
type Option func(*Notifier)

// WithFailuresOnly limits alerts to scans that ended as failed.
func WithFailuresOnly() Option {
	return func(n *Notifier) { n.failuresOnly = true }
}

// WithAPIBase points the notifier at a different Bot API host.
func WithAPIBase(base string) Option {
	return func(n *Notifier) { n.apiBase = strings.TrimRight(base, "/") }
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish posts a Markdown message describing the event.
func (n *Notifier) Publish(ctx context.Context, event domain.DiagnosisEvent) error {
	if n.failuresOnly && event.Status != domain.StatusFailed {
		return nil
	}
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatMessage(event))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatMessage(event domain.DiagnosisEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Scan* `%s`\n", event.ScanID)
	switch event.Status {
	case domain.StatusCompleted:
		fmt.Fprintf(&b, "Diagnosis: *%s*", event.DiagnosisType)
		if event.ConfidenceScore != nil {
			fmt.Fprintf(&b, " (%.2f%%)", *event.ConfidenceScore)
		}
	default:
		fmt.Fprintf(&b, "Status: *%s*", event.Status)
	}
	return b.String()
}
