package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// LLMProvider discovers companies via a direct LLM call, prompting the
// model to return a single JSON object matching CompanyDiscoveryV1 and
// parsing its text output as the payload.
type LLMProvider struct {
	APIKey string
	Model  string
}

func (p *LLMProvider) Key() string { return "llm" }

func (p *LLMProvider) ValidateConfig(allowMock bool) error { return nil }

func (p *LLMProvider) Run(ctx context.Context, tenant, runID string, req Request) (Result, error) {
	client := anthropic.NewClient(option.WithAPIKey(p.APIKey))

	model := p.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_5SonnetLatest)
	}

	prompt := buildDiscoveryPrompt(req)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	var payload CompanyDiscoveryV1
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Result{}, fmt.Errorf("parse llm discovery payload: %w", err)
	}
	payload.Provider = p.Key()
	payload.Model = model
	payload.RunContext = map[string]any{"tenant": tenant, "run_id": runID}
	SortCompanies(payload.Companies)

	return Result{
		Payload:      payload,
		Provider:     p.Key(),
		Model:        model,
		Version:      "v1",
		SourceType:   "llm_json",
		RawInputText: prompt,
	}, nil
}

func buildDiscoveryPrompt(req Request) string {
	return fmt.Sprintf(
		"Identify up to %d companies matching mandate %q in sector %q, region %q. "+
			"Respond with ONLY a JSON object matching the company_discovery_v1 schema: "+
			`{"companies":[{"name":"","website_url":"","hq_country":"","hq_city":"","sector":"","subsector":"","description":"","confidence":0.0,"evidence":[{"source_name":""}]}]}`,
		clampMaxResults(req.MaxResults), req.Mandate, req.Sector, req.RegionScope)
}
