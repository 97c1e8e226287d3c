package model

import (
	"context"
	"strings"
)

// Prompt markers shared between prompt builders and the offline generator.
// Prompts that want a deterministic offline answer include one of them.
const (
	MarkerPlan       = "[plan]"
	MarkerPriority   = "[priority]"
	MarkerAnalysis   = "[analysis]"
	MarkerDecision   = "[decision]"
	MarkerReview     = "[review]"
	MarkerPrediction = "[prediction]"
	MarkerGoal       = "[goal]"
	MarkerSuggestion = "[suggestion]"
	MarkerSummary    = "[summary]"
)

// OfflineRule maps a prompt marker to a fixed reply.
type OfflineRule struct {
	Marker   string
	Response string
}

// DefaultOfflineRules are the replies used when no rules are configured.
var DefaultOfflineRules = []OfflineRule{
	{Marker: MarkerPlan, Response: "Analyze the requirements|0.9||write_code\n" +
		"Design the module layout|0.8|task_1|write_code\n" +
		"Implement the core logic|0.7|task_2|write_code\n" +
		"Write tests|0.6|task_3|write_code\n" +
		"Document the result|0.5|task_4|create_file"},
	{Marker: MarkerPriority, Response: "0.7"},
	{Marker: MarkerAnalysis, Response: "Task completed successfully, continue with the next step."},
	{Marker: MarkerDecision, Response: `{"action":"record","reasoning":"offline mode records every event"}`},
	{Marker: MarkerReview, Response: "Looks reasonable. Score: 7"},
	{Marker: MarkerPrediction, Response: "The project will need more tests|0.7\nDocumentation will lag behind code|0.5"},
	{Marker: MarkerGoal, Response: "Keep improving code quality and documentation."},
	{Marker: MarkerSummary, Response: `{"summary":"Analysis and review are consistent; no blocking issues.","overallScore":75}`},
	{Marker: MarkerSuggestion, Response: "Add a short header comment describing the file's purpose."},
}

// Offline is a deterministic generator for demos and degraded operation.
type Offline struct {
	rules    []OfflineRule
	fallback string
}

// NewOffline creates an offline model. With no rules DefaultOfflineRules apply.
func NewOffline(rules ...OfflineRule) *Offline {
	if len(rules) == 0 {
		rules = DefaultOfflineRules
	}

	return &Offline{rules: rules, fallback: "0.7"}
}

// Generate implements Model.
func (o *Offline) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	for _, r := range o.rules {
		if strings.Contains(req.Prompt, r.Marker) {
			return Response{Text: r.Response, FinishReason: "stop"}, nil
		}
	}

	return Response{Text: o.fallback, FinishReason: "stop"}, nil
}

// Info implements Model.
func (o *Offline) Info() Info { return Info{Name: "offline", Provider: "offline"} }
