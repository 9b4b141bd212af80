// Package advisor asks a language model to sanity-check the rule engine's
// proposed bid factors. It is strictly advisory: the rule ladder decides the
// direction, the advisor may nudge the magnitude and attach a comment. Any
// failure falls back to the rule value.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/pkg/anthropic"
)

// DefaultModel is used when the configuration does not name one.
const DefaultModel = "claude-haiku-4-5-20251001"

const maxResponseTokens = 256

const systemPrompt = `You review proposed bid adjustments for Amazon sponsored-product ads.
You receive one adjustment at a time: a subject (ASIN or ASIN:SKU), the
decision (reduce or expand), the proposed multiplicative factor and the
reason derived from trailing 7-day performance.

Respond with a single JSON object and nothing else:
{"factor": <number>, "comment": "<one short sentence>"}

Keep the factor within [0.5, 1.5]. Only deviate from the proposed factor
when the reason suggests the adjustment is too aggressive or too timid.
An empty comment is fine when you agree.`

// Advisor implements the rule engine's Advisor interface on top of the
// Anthropic Messages API.
type Advisor struct {
	client anthropic.Client
	model  string
	system []anthropic.SystemBlock
}

// New builds an Advisor from configuration. Returns an error when no API key
// is configured; callers treat that as "run without an advisor".
func New(cfg config.AdvisorConfig) (*Advisor, error) {
	if cfg.Key == "" {
		return nil, eris.New("advisor: no api key configured")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Advisor{
		client: anthropic.NewClient(cfg.Key),
		model:  model,
		system: anthropic.BuildCachedSystemBlocks(systemPrompt),
	}, nil
}

// NewWithClient is the injection point for tests.
func NewWithClient(client anthropic.Client, model string) *Advisor {
	if model == "" {
		model = DefaultModel
	}
	return &Advisor{
		client: client,
		model:  model,
		system: anthropic.BuildCachedSystemBlocks(systemPrompt),
	}
}

// revision is the JSON shape the model is asked to produce.
type revision struct {
	Factor  float64 `json:"factor"`
	Comment string  `json:"comment"`
}

// ReviseFactor submits one proposed adjustment for review.
func (a *Advisor) ReviseFactor(ctx context.Context, subject, decision string, factor float64, reason string) (float64, string, error) {
	prompt := fmt.Sprintf("subject: %s\ndecision: %s\nproposed factor: %.3f\nreason: %s",
		subject, decision, factor, reason)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxResponseTokens,
		System:    a.system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return 0, "", eris.Wrap(err, "advisor: revise factor")
	}
	resp.Usage.LogCost(a.model, "advisor")

	rev, err := parseRevision(resp.Text())
	if err != nil {
		zap.L().Debug("advisor returned unparseable revision",
			zap.String("subject", subject), zap.Error(err))
		return 0, "", err
	}
	return rev.Factor, rev.Comment, nil
}

// parseRevision extracts the JSON object from the model's reply, tolerating
// surrounding prose or markdown fences.
func parseRevision(text string) (revision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return revision{}, eris.Errorf("advisor: no JSON object in reply: %s", snippet(text))
	}
	var rev revision
	if err := json.Unmarshal([]byte(text[start:end+1]), &rev); err != nil {
		return revision{}, eris.Wrap(err, "advisor: decode revision")
	}
	if rev.Factor <= 0 {
		return revision{}, eris.Errorf("advisor: non-positive factor %.3f", rev.Factor)
	}
	return rev, nil
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 120 {
		return text[:120] + "..."
	}
	return text
}
