// Package anthropic provides an LLM-backed personalizer using the
// Anthropic Messages API: instead of plain variable substitution the
// template is rewritten for the specific lead, keeping the template's
// intent while weaving in the lead's company, role and pain points.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/nurturemesh/core"
	"github.com/hupe1980/nurturemesh/personalize"
)

const systemPrompt = `You personalize sales nurturing messages. You are given a
message template and a lead record. Rewrite the template for this lead:
keep the template's structure and intent, substitute every placeholder,
and reference the lead's industry and pain points naturally. Output only
the final message body, nothing else.`

// Options configures the Anthropic personalizer.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Personalizer rewrites templates through the Anthropic Messages API.
// Subjects stay on plain variable substitution; only the body goes through
// the model.
type Personalizer struct {
	client   *anthropic.Client
	fallback *personalize.VariablePersonalizer
	opts     Options
}

// NewPersonalizer creates a personalizer using the official client.
func NewPersonalizer(optFns ...func(o *Options)) *Personalizer {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.3,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Personalizer{
		client:   &client,
		fallback: personalize.NewVariablePersonalizer(),
		opts:     opts,
	}
}

// NewPersonalizerFromClient creates a personalizer from an existing client.
func NewPersonalizerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Personalizer {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.3,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Personalizer{
		client:   client,
		fallback: personalize.NewVariablePersonalizer(),
		opts:     opts,
	}
}

// Personalize renders the subject by variable substitution and rewrites
// the body through the model. On an API failure the substituted body is
// returned instead, so a model outage never blocks a due delivery.
func (p *Personalizer) Personalize(ctx context.Context, tmpl core.Template, lead core.Lead) (string, string, error) {
	subject, body, err := p.fallback.Personalize(ctx, tmpl, lead)
	if err != nil {
		return "", "", err
	}

	leadJSON, err := json.Marshal(personalize.Variables(lead))
	if err != nil {
		return "", "", err
	}

	prompt := fmt.Sprintf("Template:\n%s\n\nLead:\n%s", tmpl.Body, string(leadJSON))
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return subject, body, nil
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return subject, body, nil
	}
	return subject, sb.String(), nil
}

// Interface compliance (compile-time assertion)
var _ core.Personalizer = (*Personalizer)(nil)
