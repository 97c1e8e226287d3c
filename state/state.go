// Package state holds the mutable state shared by the kernel's loops and the
// Owner that serializes every write to it.
package state

import (
	"sort"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/graph"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/tool"
)

// Goal is a long-running objective pursued by the proactive loops.
type Goal struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Priority    float64 `json:"priority"`
	Progress    float64 `json:"progress"`
}

// Ids of the default goals.
const (
	GoalQuality = "goal_quality"
	GoalDocs    = "goal_docs"
)

// DefaultGoals are the goals a proactive agent starts with.
func DefaultGoals() []Goal {
	return []Goal{
		{ID: GoalQuality, Description: "Improve code quality", Priority: 0.9},
		{ID: GoalDocs, Description: "Keep documentation complete", Priority: 0.7},
	}
}

// AgentState is everything one agent run knows. It is not safe for
// concurrent use on its own; access it through an Owner.
type AgentState struct {
	ID          string
	Goal        string
	Goals       []Goal
	WorkingPath string
	Graph       *graph.Graph
	Knowledge   *core.KnowledgeBase
	Status      core.RunStatus
	Meta        core.Metadata
}

// New creates an idle state for goal.
func New(id, goal string) *AgentState {
	now := time.Now()

	return &AgentState{
		ID:        id,
		Goal:      goal,
		Graph:     graph.New(),
		Knowledge: core.NewKnowledgeBase(),
		Status:    core.StatusIdle,
		Meta:      core.Metadata{StartTime: now, LastUpdate: now},
	}
}

// Touch refreshes the liveness timestamp.
func (s *AgentState) Touch() { s.Meta.LastUpdate = time.Now() }

// Tick advances the iteration counter and returns the new value.
func (s *AgentState) Tick() int {
	s.Meta.Iteration++
	s.Touch()

	return s.Meta.Iteration
}

// TopGoals returns the goals ordered by descending priority.
func (s *AgentState) TopGoals() []Goal {
	out := append([]Goal(nil), s.Goals...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })

	return out
}

// ToolContext builds the read-only view handed to tools.
func (s *AgentState) ToolContext(logger logging.Logger) *tool.Context {
	completed := s.Graph.Completed()
	descs := make([]string, 0, len(completed))

	for _, t := range completed {
		descs = append(descs, t.Description)
	}

	return &tool.Context{
		WorkingPath:    s.WorkingPath,
		Goal:           s.Goal,
		CompletedTasks: descs,
		Knowledge:      s.Knowledge.Summary(),
		Logger:         logger,
	}
}

// Snapshot is the serializable form of an AgentState.
type Snapshot struct {
	ID          string              `json:"id"`
	Goal        string              `json:"goal"`
	Goals       []Goal              `json:"goals,omitempty"`
	WorkingPath string              `json:"working_path,omitempty"`
	Status      core.RunStatus      `json:"status"`
	Meta        core.Metadata       `json:"metadata"`
	Graph       graph.Snapshot      `json:"graph"`
	Knowledge   *core.KnowledgeBase `json:"knowledge"`
	TakenAt     time.Time           `json:"taken_at"`
}

// Snapshot copies s.
func (s *AgentState) Snapshot() Snapshot {
	return Snapshot{
		ID:          s.ID,
		Goal:        s.Goal,
		Goals:       append([]Goal(nil), s.Goals...),
		WorkingPath: s.WorkingPath,
		Status:      s.Status,
		Meta:        s.Meta,
		Graph:       s.Graph.Snapshot(),
		Knowledge:   copyKnowledge(s.Knowledge),
		TakenAt:     time.Now(),
	}
}

// FromSnapshot rebuilds a state from sn.
func FromSnapshot(sn Snapshot) *AgentState {
	kb := sn.Knowledge
	if kb == nil {
		kb = core.NewKnowledgeBase()
	}

	return &AgentState{
		ID:          sn.ID,
		Goal:        sn.Goal,
		Goals:       append([]Goal(nil), sn.Goals...),
		WorkingPath: sn.WorkingPath,
		Graph:       graph.Restore(sn.Graph),
		Knowledge:   copyKnowledge(kb),
		Status:      sn.Status,
		Meta:        sn.Meta,
	}
}

func copyKnowledge(kb *core.KnowledgeBase) *core.KnowledgeBase {
	out := core.NewKnowledgeBase()
	for k, v := range kb.Snapshot() {
		out.Set(k, v)
	}

	return out
}
