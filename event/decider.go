package event

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/model"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

const decisionPrompt = `{{.Marker}} You are a reactive coding assistant. An event was observed; decide how to respond.

Event type: {{.Type}}
Path: {{.Path}}
Content:
{{.Content}}

Context: {{.Context}}

Choose one action:
- "mutate": create or overwrite a file (parameters: path, content)
- "record": remember the event (parameters: message)
- "ignore": irrelevant change such as generated files or logs

Reply with JSON only:
{"action": "...", "parameters": {...}, "reasoning": "..."}`

// LLMDecider asks an inference service for the reaction.
type LLMDecider struct {
	model   model.Model
	context string
}

// NewLLMDecider creates a decider; contextInfo is included in every prompt.
func NewLLMDecider(m model.Model, contextInfo string) *LLMDecider {
	return &LLMDecider{model: m, context: contextInfo}
}

// Decide implements Decider. Replies that are not valid JSON, or name an
// unknown action, become a record action.
func (d *LLMDecider) Decide(ctx context.Context, ev core.ReactiveEvent) (Action, error) {
	prompt, err := util.RenderTemplate(decisionPrompt, map[string]any{
		"Marker":  model.MarkerDecision,
		"Type":    string(ev.Type),
		"Path":    ev.PayloadString("path"),
		"Content": ev.PayloadString("content"),
		"Context": d.context,
	})
	if err != nil {
		return Action{}, fmt.Errorf("render decision prompt: %w", err)
	}

	text, err := model.Text(ctx, d.model, prompt, 0.2, 1000)
	if err != nil {
		return Action{}, err
	}

	return ParseAction(text), nil
}

type decision struct {
	Action     string         `json:"action"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
	Reasoning  string         `json:"reasoning"`
}

// ParseAction extracts the first JSON object from text. Legacy action names
// ("write_file", "log") are accepted.
func ParseAction(text string) Action {
	fallback := Action{Kind: ActionRecord, Reasoning: "unparseable decision"}

	raw := jsonObject.FindString(text)
	if raw == "" {
		return fallback
	}

	var d decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return fallback
	}

	name := d.Action
	if name == "" {
		name = d.Type
	}

	var kind ActionKind

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mutate", "write_file":
		kind = ActionMutate
	case "record", "log":
		kind = ActionRecord
	case "ignore":
		kind = ActionIgnore
	default:
		return fallback
	}

	params := d.Parameters
	if params == nil {
		params = map[string]any{}
	}

	if _, ok := params["path"]; !ok {
		if fp, ok := params["filePath"]; ok {
			params["path"] = fp
		}
	}

	return Action{Kind: kind, Params: params, Reasoning: d.Reasoning}
}
