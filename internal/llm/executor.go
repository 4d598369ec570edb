package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexrt/cortex/internal/skill"
)

const ExecutorType = "llm"

// DecompositionResult is the structured shape the skill-driven agent expects
// back from the pipeline (SPEC_FULL.md §4.5-C). The extractor in package
// skillagent tolerates a legacy flat single-task shape too; Executor itself
// only constructs the prompt and parses whatever JSON object comes back.
type DecompositionResult struct {
	Summary    string              `json:"summary"`
	Confidence float64             `json:"confidence"`
	Tasks      []DecompositionTask `json:"tasks,omitempty"`

	// Legacy flat shape (one task, no "tasks" wrapper).
	Capability    string `json:"capability,omitempty"`
	AuthorityTier string `json:"authorityTier,omitempty"`
}

type DecompositionTask struct {
	Capability    string `json:"capability"`
	Description   string `json:"description"`
	AuthorityTier string `json:"authorityTier"`
}

// Executor is the LLM skill executor: it builds a prompt from the skill
// definition and the call's parameters, invokes client.Complete, and parses
// the first JSON object out of the response.
type Executor struct {
	client Client
}

func NewExecutor(client Client) *Executor {
	return &Executor{client: client}
}

var _ skill.Executor = (*Executor)(nil)

func (e *Executor) Execute(ctx context.Context, definition skill.Definition, parameters map[string]any) (any, error) {
	prompt := buildPrompt(definition, parameters)

	raw, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm executor: %s: %w", definition.SkillID, err)
	}

	value, err := extractFirstJSONObject(raw)
	if err != nil {
		return nil, nil
	}
	return value, nil
}

func buildPrompt(definition skill.Definition, parameters map[string]any) string {
	base := definition.Content
	if base == "" {
		base = definition.Description
	}

	var b strings.Builder
	b.WriteString(base)

	if caps, ok := parameters["availableCapabilities"].([]string); ok && len(caps) > 0 {
		b.WriteString("\n\nAvailable capabilities: ")
		b.WriteString(strings.Join(caps, ", "))
	}
	if content, ok := parameters["messageContent"].(string); ok && content != "" {
		b.WriteString("\n\nMessage:\n")
		b.WriteString(content)
	}
	return b.String()
}

// extractFirstJSONObject strips markdown code fences and decodes the first
// balanced {...} object found in raw.
func extractFirstJSONObject(raw string) (map[string]any, error) {
	text := stripCodeFences(raw)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("llm executor: no JSON object found in response")
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var value map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &value); err != nil {
					return nil, fmt.Errorf("llm executor: decode JSON object: %w", err)
				}
				return value, nil
			}
		}
	}
	return nil, fmt.Errorf("llm executor: unbalanced JSON object in response")
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if newline := strings.IndexByte(s, '\n'); newline >= 0 {
		s = s[newline+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return s
}
