package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/graph"
	"github.com/hupe1980/agentkernel/model"
	"github.com/hupe1980/agentkernel/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Planner = (*LLMPlanner)(nil)
	_ Planner = Func(nil)
)

func TestParseTasks(t *testing.T) {
	text := `Example: Create project directory|0.9||create_dir
Create source directory|0.9||create_dir|src
1. Write main module|1.7|task_1|write_code|src/main.go
no separator here
Write tests|abc|task_2,task_9,task_1
Forward ref|0.4|task_5`

	tasks := ParseTasks(text, 0)
	require.Len(t, tasks, 4)

	assert.Equal(t, "task_1", tasks[0].ID)
	assert.Equal(t, tool.CreateDirName, tasks[0].Tool)
	assert.Equal(t, "src", tasks[0].Parameters["dirPath"])

	assert.Equal(t, "Write main module", tasks[1].Description)
	assert.Equal(t, 1.0, tasks[1].Priority)
	assert.Equal(t, []string{"task_1"}, tasks[1].Dependencies)
	assert.Equal(t, "src/main.go", tasks[1].Parameters["filePath"])

	assert.Equal(t, DefaultPriority, tasks[2].Priority)
	assert.Equal(t, []string{"task_2", "task_1"}, tasks[2].Dependencies)
	assert.Equal(t, tool.WriteCodeName, tasks[2].Tool)

	assert.Empty(t, tasks[3].Dependencies, "forward references are dropped")
}

func TestParseTasks_OffsetAndKnown(t *testing.T) {
	tasks := ParseTasks("First|0.5|task_3\nSecond|0.5|task_1,task_4", 4, "task_3")
	require.Len(t, tasks, 2)
	assert.Equal(t, "task_5", tasks[0].ID)
	assert.Equal(t, []string{"task_3"}, tasks[0].Dependencies)
	assert.Equal(t, "task_6", tasks[1].ID)
	assert.Equal(t, []string{"task_5"}, tasks[1].Dependencies)
}

func TestParseTasks_BatchIsInsertable(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Add(ParseTasks(model.DefaultOfflineRules[0].Response, 0)...))
	assert.Equal(t, 5, g.Len())
}

func TestInferTool(t *testing.T) {
	assert.Equal(t, tool.CreateDirName, InferTool("Create the project folder"))
	assert.Equal(t, tool.CreateFileName, InferTool("Write README"))
	assert.Equal(t, tool.AppendFileName, InferTool("Append to the todo list"))
	assert.Equal(t, tool.WriteCodeName, InferTool("Implement the parser"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "write-the-main-module", Slug("Write the Main module!"))
	assert.Equal(t, "task", Slug("???"))
}

func TestDefaultPlan(t *testing.T) {
	tasks := DefaultPlan("ship it", 2)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task_3", tasks[0].ID)
	assert.Equal(t, []string{"task_3"}, tasks[1].Dependencies)
	assert.Contains(t, tasks[0].Description, "ship it")
}

func TestLLMPlanner(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddContains(model.MarkerPlan, "Design|0.8\nBuild|0.7|task_1")

	p := NewLLMPlanner(m)
	tasks, err := p.GenerateTasks(context.Background(), "goal", PlanContext{Tools: "- write_code"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{"task_1"}, tasks[1].Dependencies)
	assert.Contains(t, m.Calls()[0].Prompt, "Goal: goal")
}

func TestLLMPlanner_ServiceFailure(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueError(errors.New("down"))

	_, err := NewLLMPlanner(m).GenerateTasks(context.Background(), "goal", PlanContext{})
	assert.ErrorIs(t, err, core.ErrPlanningFailure)
}

func TestGenerateContinuation(t *testing.T) {
	p := Func(func(_ context.Context, _ string, pc PlanContext) ([]*core.Task, error) {
		return ParseTasks("More|0.6\nEven more|0.5|task_1", pc.Offset), nil
	})

	tasks, err := GenerateContinuation(context.Background(), p, "g", PlanContext{Offset: 2, LastCompletedID: "task_2"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{"task_2"}, tasks[0].Dependencies)
	assert.Equal(t, []string{"task_3", "task_2"}, tasks[1].Dependencies)

	tasks, err = GenerateContinuation(context.Background(), p, "g", PlanContext{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPrioritizer(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue("0.95")
	m.Enqueue("not a number")
	m.Enqueue("7")

	p := NewPrioritizer(m, nil)
	task := core.NewTask("t", "x", 0.4)

	assert.Equal(t, 0.95, p.Evaluate(context.Background(), task, "g"))
	assert.Equal(t, 0.4, p.Evaluate(context.Background(), task, "g"))
	assert.Equal(t, 1.0, p.Evaluate(context.Background(), task, "g"))
}

func TestAnalyzer(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddContains(model.MarkerAnalysis, "looks done")

	out, err := NewAnalyzer(m).Analyze(context.Background(), core.NewTask("t", "x", 0.5), core.TaskOutcome{Success: true, Result: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "looks done", out)
}
