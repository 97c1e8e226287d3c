package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/model"
	"golang.org/x/sync/errgroup"
)

// Well-known peer ids.
const (
	AnalyzerID    = "analyzer_01"
	ReviewerID    = "reviewer_01"
	CoordinatorID = "coordinator_01"
)

// Message types exchanged by the peers.
const (
	TypeAnalyzeRequest = "analyze_request"
	TypeAnalyzeResult  = "analyze_result"
	TypeAnalyzeError   = "analyze_error"
	TypeReviewRequest  = "review_request"
	TypeReviewResult   = "review_result"
	TypeReviewError    = "review_error"
)

// ErrPeerFailure is returned by the Coordinator when a peer answered with an
// error message.
var ErrPeerFailure = errors.New("peer failure")

// PeerOptions configure an Analyzer or Reviewer.
type PeerOptions struct {
	ID     string
	Logger logging.Logger
}

type serveFunc func(ctx context.Context, msg core.Message) (map[string]any, error)

// peer answers one request type on its own goroutine per request.
type peer struct {
	id     string
	bus    *Bus
	model  model.Model
	logger logging.Logger

	mu          sync.Mutex
	closed      bool
	wg          sync.WaitGroup
	unsubscribe func()
}

func newPeer(b *Bus, m model.Model, defaultID string, optFns []func(o *PeerOptions)) *peer {
	opts := PeerOptions{ID: defaultID}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &peer{id: opts.ID, bus: b, model: m, logger: logging.OrNoOp(opts.Logger)}
}

func (p *peer) listen(reqType, okType, errType string, serve serveFunc) {
	p.unsubscribe = p.bus.SubscribeRecipient(p.id, func(ctx context.Context, msg core.Message) {
		if msg.Type != reqType {
			p.logger.Warn("bus.peer.unexpected", "peer", p.id, "type", msg.Type)
			return
		}

		// Send may still call a snapshotted handler after Close started.
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.logger.Warn("bus.peer.closed", "peer", p.id, "conversation", msg.ConversationID)

			return
		}

		p.wg.Add(1)
		p.mu.Unlock()

		go func() {
			defer p.wg.Done()

			var reply core.Message

			payload, err := serve(ctx, msg)
			if err != nil {
				p.logger.Error("bus.peer.failed", "peer", p.id, "conversation", msg.ConversationID, "error", err.Error())
				reply = msg.Reply(errType, map[string]any{"error": err.Error()})
			} else {
				reply = msg.Reply(okType, payload)
			}

			if err := p.bus.Send(ctx, reply); err != nil {
				p.logger.Error("bus.peer.reply_failed", "peer", p.id, "error", err.Error())
			}
		}()
	})
}

// ID returns the peer's agent id.
func (p *peer) ID() string { return p.id }

// Close unsubscribes the peer and waits for requests in flight.
func (p *peer) Close() {
	p.unsubscribe()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *peer) generate(ctx context.Context, tmpl string, data map[string]any, maxTokens int64) (string, error) {
	prompt, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		return "", err
	}

	return model.Text(ctx, p.model, prompt, 0.3, maxTokens)
}

const analyzePrompt = `{{.Marker}} You are a code analysis agent.

Task: {{.Task}}
{{if .Content}}Content:
{{truncate 2000 .Content}}
{{end}}
Assess complexity, list issues and strengths. Be concise.`

// Analyzer answers analyze_request with analyze_result or analyze_error.
type Analyzer struct{ *peer }

// NewAnalyzer subscribes an analyzer on b.
func NewAnalyzer(b *Bus, m model.Model, optFns ...func(o *PeerOptions)) *Analyzer {
	a := &Analyzer{newPeer(b, m, AnalyzerID, optFns)}
	a.listen(TypeAnalyzeRequest, TypeAnalyzeResult, TypeAnalyzeError, a.serve)

	return a
}

func (a *Analyzer) serve(ctx context.Context, msg core.Message) (map[string]any, error) {
	task := msg.PayloadString("task")
	if task == "" {
		return nil, fmt.Errorf("%w: analyze_request without task", core.ErrInvalidParameters)
	}

	text, err := a.generate(ctx, analyzePrompt, map[string]any{
		"Marker":  model.MarkerAnalysis,
		"Task":    task,
		"Content": msg.PayloadString("content"),
	}, 1000)
	if err != nil {
		return nil, err
	}

	return map[string]any{"analysis": text}, nil
}

const reviewPrompt = `{{.Marker}} You are a code review agent.

Task: {{.Task}}
Analysis:
{{.Analysis}}

Give 3 to 5 concrete recommendations with a priority each.`

// Reviewer answers review_request with review_result or review_error.
type Reviewer struct{ *peer }

// NewReviewer subscribes a reviewer on b.
func NewReviewer(b *Bus, m model.Model, optFns ...func(o *PeerOptions)) *Reviewer {
	r := &Reviewer{newPeer(b, m, ReviewerID, optFns)}
	r.listen(TypeReviewRequest, TypeReviewResult, TypeReviewError, r.serve)

	return r
}

func (r *Reviewer) serve(ctx context.Context, msg core.Message) (map[string]any, error) {
	analysis := msg.PayloadString("analysis")
	if analysis == "" {
		return nil, fmt.Errorf("%w: review_request without analysis", core.ErrInvalidParameters)
	}

	text, err := r.generate(ctx, reviewPrompt, map[string]any{
		"Marker":   model.MarkerReview,
		"Task":     msg.PayloadString("task"),
		"Analysis": analysis,
	}, 1000)
	if err != nil {
		return nil, err
	}

	return map[string]any{"review": text}, nil
}

// Report is the Coordinator's result for one task.
type Report struct {
	ConversationID string    `json:"conversation_id"`
	Task           string    `json:"task"`
	Analysis       string    `json:"analysis"`
	Review         string    `json:"review"`
	Summary        string    `json:"summary"`
	OverallScore   int       `json:"overall_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary defaults used when the model reply cannot be parsed.
const (
	DefaultSummary = "review completed"
	DefaultScore   = 75
)

// CoordinatorOptions configure a Coordinator.
type CoordinatorOptions struct {
	ID string
	// Timeout bounds each wait for a peer reply.
	Timeout time.Duration
	// Concurrency limits ProcessAll; zero means unlimited.
	Concurrency int
	AnalyzerID  string
	ReviewerID  string
	Logger      logging.Logger
}

// Coordinator drives analyze -> review exchanges and merges the answers
// into a Report. Each task runs in its own conversation, so concurrent
// Process calls never see each other's replies.
type Coordinator struct {
	bus     *Bus
	model   model.Model
	mailbox *Mailbox
	opts    CoordinatorOptions
}

// NewCoordinator creates a coordinator with its own mailbox on b.
func NewCoordinator(b *Bus, m model.Model, optFns ...func(o *CoordinatorOptions)) *Coordinator {
	opts := CoordinatorOptions{
		ID:         CoordinatorID,
		Timeout:    DefaultResponseTimeout,
		AnalyzerID: AnalyzerID,
		ReviewerID: ReviewerID,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Coordinator{bus: b, model: m, mailbox: NewMailbox(b, opts.ID), opts: opts}
}

// Mailbox returns the coordinator's mailbox.
func (c *Coordinator) Mailbox() *Mailbox { return c.mailbox }

// Process runs one task through analysis and review. A peer that does not
// answer within the timeout yields *core.ResponseTimeoutError.
func (c *Coordinator) Process(ctx context.Context, task string) (Report, error) {
	convID := core.NewID()
	log := c.opts.Logger

	defer c.mailbox.Discard(convID)

	log.Info("bus.coordinator.started", "conversation", convID, "task", task)

	analysisMsg, err := c.ask(ctx, convID, c.opts.AnalyzerID, TypeAnalyzeRequest, TypeAnalyzeResult,
		map[string]any{"task": task})
	if err != nil {
		return Report{}, err
	}

	analysis := analysisMsg.PayloadString("analysis")

	reviewMsg, err := c.ask(ctx, convID, c.opts.ReviewerID, TypeReviewRequest, TypeReviewResult,
		map[string]any{"task": task, "analysis": analysis})
	if err != nil {
		return Report{}, err
	}

	report := Report{
		ConversationID: convID,
		Task:           task,
		Analysis:       analysis,
		Review:         reviewMsg.PayloadString("review"),
		CreatedAt:      time.Now().UTC(),
	}

	report.Summary, report.OverallScore = c.summarize(ctx, report)

	log.Info("bus.coordinator.completed", "conversation", convID, "score", report.OverallScore)

	return report, nil
}

// ProcessAll runs Process for every task concurrently and returns the
// reports in task order. The first failure cancels the rest.
func (c *Coordinator) ProcessAll(ctx context.Context, tasks []string) ([]Report, error) {
	reports := make([]Report, len(tasks))

	eg, gctx := errgroup.WithContext(ctx)
	if c.opts.Concurrency > 0 {
		eg.SetLimit(c.opts.Concurrency)
	}

	for i, task := range tasks {
		i, task := i, task
		eg.Go(func() error {
			r, err := c.Process(gctx, task)
			if err != nil {
				return fmt.Errorf("task %q: %w", task, err)
			}

			reports[i] = r

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

func (c *Coordinator) ask(ctx context.Context, convID, to, reqType, okType string, payload map[string]any) (core.Message, error) {
	req := core.NewMessage(c.opts.ID, to, reqType, payload).InConversation(convID)
	if err := c.bus.Send(ctx, req); err != nil {
		return core.Message{}, err
	}

	resp, err := c.mailbox.WaitForResponse(ctx, convID, c.opts.Timeout)
	if err != nil {
		return core.Message{}, err
	}

	if resp.Type != okType {
		return core.Message{}, fmt.Errorf("%w: %s answered %s: %s", ErrPeerFailure, resp.From, resp.Type, resp.PayloadString("error"))
	}

	return resp, nil
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

const summaryPrompt = `{{.Marker}} You coordinate a code review.

Task: {{.Task}}
Analysis:
{{.Analysis}}
Review:
{{.Review}}

Write a two sentence summary and an overall score from 0 to 100.
Reply with JSON only: {"summary": "...", "overallScore": 0}`

func (c *Coordinator) summarize(ctx context.Context, r Report) (string, int) {
	prompt, err := util.RenderTemplate(summaryPrompt, map[string]any{
		"Marker":   model.MarkerSummary,
		"Task":     r.Task,
		"Analysis": r.Analysis,
		"Review":   r.Review,
	})
	if err != nil {
		return DefaultSummary, DefaultScore
	}

	text, err := model.Text(ctx, c.model, prompt, 0.3, 500)
	if err != nil {
		c.opts.Logger.Warn("bus.coordinator.summary_failed", "conversation", r.ConversationID, "error", err.Error())
		return DefaultSummary, DefaultScore
	}

	return ParseSummary(text)
}

// ParseSummary reads {"summary": ..., "overallScore": ...} from text,
// falling back to DefaultSummary and DefaultScore for missing parts. The
// score is clamped to [0,100].
func ParseSummary(text string) (string, int) {
	summary, score := DefaultSummary, DefaultScore

	var out struct {
		Summary      string   `json:"summary"`
		OverallScore *float64 `json:"overallScore"`
	}

	if err := json.Unmarshal([]byte(jsonObject.FindString(text)), &out); err != nil {
		return summary, score
	}

	if out.Summary != "" {
		summary = out.Summary
	}

	if out.OverallScore != nil {
		score = int(min(100, max(0, *out.OverallScore)))
	}

	return summary, score
}

// Close detaches the coordinator's mailbox.
func (c *Coordinator) Close() { c.mailbox.Close() }
