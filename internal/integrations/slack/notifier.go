package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/sriramcse31/ai-test-triage-agent/internal/config"
	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/httpx"
)

// API is the subset of *slack.Client the notifier uses.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
}

// Notifier posts triage verdicts and batch summaries to one channel.
type Notifier struct {
	api      API
	channel  string
	channels channelCache
}

func New(api API, channel string) *Notifier {
	return &Notifier{api: api, channel: channel}
}

// NewFromConfig builds a notifier on the shared external HTTP client. It
// returns nil when Slack is not configured.
func NewFromConfig(cfg config.Config) *Notifier {
	if !cfg.SlackConfigured() {
		return nil
	}
	api := slack.New(cfg.SlackBotToken, slack.OptionHTTPClient(httpx.ExternalHTTPClient()))
	return New(api, cfg.SlackChannelID)
}

// NotifyResult posts the verdict for one analyzed failure.
func (n *Notifier) NotifyResult(ctx context.Context, r *domain.TriageResult) error {
	channelID, err := n.resolveChannelID(ctx, n.channel)
	if err != nil {
		return err
	}
	_, ts, err := n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(VerdictText(r), false),
		slack.MsgOptionBlocks(VerdictBlocks(r)...),
	)
	if err != nil {
		log.Printf("slack notify error test=%s: %v", r.TestName, err)
		return fmt.Errorf("posting verdict: %w", err)
	}
	log.Printf("slack notify test=%s channel=%s ts=%s", r.TestName, channelID, ts)
	return nil
}

// NotifyText posts a plain message, used for batch and watch summaries.
func (n *Notifier) NotifyText(ctx context.Context, text string) error {
	channelID, err := n.resolveChannelID(ctx, n.channel)
	if err != nil {
		return err
	}
	if _, _, err := n.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("slack post error: %v", err)
		return fmt.Errorf("posting message: %w", err)
	}
	return nil
}

// VerdictText is the notification fallback text shown by clients that do not
// render blocks.
func VerdictText(r *domain.TriageResult) string {
	text := fmt.Sprintf("Triage %s: %s (flaky %.0f%%, confidence %.0f%%)",
		r.TestName, r.Classification.Label(), r.FlakyProbability*100, r.ConfidenceScore*100)
	if len(r.SuggestedActions) > 0 {
		text += " - next: " + r.SuggestedActions[0]
	}
	return text
}

func VerdictBlocks(r *domain.TriageResult) []slack.Block {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, "Test failure triage: "+r.TestName, false, false),
	)
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Classification*\n"+string(r.Classification), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Flaky probability*\n%.1f%%", r.FlakyProbability*100), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Confidence*\n%.1f%%", r.ConfidenceScore*100), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Explanation*\n"+r.ExplanationSource, false, false),
	}
	blocks := []slack.Block{
		header,
		slack.NewSectionBlock(nil, fields, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, r.RootCauseExplanation, false, false), nil, nil),
	}

	if len(r.SuggestedActions) > 0 {
		var b strings.Builder
		b.WriteString("*Suggested actions*")
		for i, a := range r.SuggestedActions {
			fmt.Fprintf(&b, "\n%d. %s", i+1, a)
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, b.String(), false, false), nil, nil))
	}
	return blocks
}
