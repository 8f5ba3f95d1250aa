// Package agent implements the per-turn orchestration loop: it grounds
// the model in the legacy's state, lets it call tools for a bounded
// number of rounds, and persists the shaped reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/heirloom/internal/conversation"
	"github.com/nugget/heirloom/internal/grounding"
	"github.com/nugget/heirloom/internal/llm"
	"github.com/nugget/heirloom/internal/prompts"
	"github.com/nugget/heirloom/internal/tools"
)

// ErrModelUnavailable is returned when the model endpoint fails even
// after the reduced-prompt retry and no tool has run this turn.
var ErrModelUnavailable = errors.New("model unavailable")

// Defaults applied by NewLoop to zero Config fields.
const (
	DefaultMaxRounds      = 5
	DefaultHistoryWindow  = 20
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxTokens      = 1024
)

// Config tunes the loop. A nil Temperature leaves the provider default.
type Config struct {
	Model          string
	MaxTokens      int
	Temperature    *float64
	MaxRounds      int
	HistoryWindow  int
	RequestTimeout time.Duration
}

// Assembler produces the grounding for a turn.
type Assembler interface {
	Assemble(ctx context.Context, legacyID, userID string) (grounding.Grounding, error)
}

// ToolRunner executes one tool call. It reports failures in the Outcome
// rather than as an error.
type ToolRunner interface {
	Execute(ctx context.Context, scope tools.Scope, name string, input map[string]any) tools.Outcome
}

// Turn is one user message to answer.
type Turn struct {
	ConversationID string
	LegacyID       string
	UserID         string
	Text           string
}

// Result is the outcome of a completed turn.
type Result struct {
	// Reply is the persisted assistant message.
	Reply conversation.Message
	// Provider is the endpoint that produced the final response.
	Provider string
	// Rounds is the number of tool rounds executed.
	Rounds int
	// Degraded is set when the model failed after tools had run and
	// the reply is a canned acknowledgement.
	Degraded bool
}

// Loop runs turns.
type Loop struct {
	llm           llm.Client
	conversations conversation.Store
	assembler     Assembler
	tools         ToolRunner
	specs         []llm.ToolSpec
	cfg           Config
	logger        *slog.Logger
}

// NewLoop creates a loop. Zero Config fields take the package defaults.
func NewLoop(client llm.Client, convs conversation.Store, assembler Assembler, runner ToolRunner, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Loop{
		llm:           client,
		conversations: convs,
		assembler:     assembler,
		tools:         runner,
		specs:         tools.Specs(),
		cfg:           cfg,
		logger:        logger,
	}
}

// turnState accumulates what one turn has produced so far.
type turnState struct {
	// messages is the replayed history followed by this turn's
	// exchange, which starts at exchangeStart.
	messages      []llm.Message
	exchangeStart int
	userText      string

	inputTokens  int
	outputTokens int
	model        string
	provider     string

	records       []conversation.ToolCallRecord
	preTool       string
	questionAsked bool
	emptyRetried  bool
	rounds        int
}

// reduced is the prompt for a retry after a failed call: the user's
// message and this turn's exchange, with the replayed history dropped.
func (s *turnState) reduced() []llm.Message {
	out := []llm.Message{llm.TextMessage(llm.RoleUser, s.userText)}
	return append(out, s.messages[s.exchangeStart:]...)
}

func (s *turnState) add(resp *llm.Response) {
	s.inputTokens += resp.InputTokens
	s.outputTokens += resp.OutputTokens
	if resp.Model != "" {
		s.model = resp.Model
	}
	if resp.Provider != "" {
		s.provider = resp.Provider
	}
}

// Run answers one user message. The user message is persisted before
// the model is called, so it survives a model failure.
func (l *Loop) Run(ctx context.Context, turn Turn) (*Result, error) {
	start := time.Now()
	log := l.logger.With("conversation", turn.ConversationID, "legacy", turn.LegacyID)
	ctx = tools.WithConversationID(ctx, turn.ConversationID)

	if _, err := l.conversations.Append(ctx, conversation.TextMessage(turn.ConversationID, llm.RoleUser, turn.Text)); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := l.conversations.Recent(ctx, turn.ConversationID, l.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	g, err := l.assembler.Assemble(ctx, turn.LegacyID, turn.UserID)
	if err != nil {
		return nil, fmt.Errorf("assemble grounding: %w", err)
	}

	st := &turnState{model: l.cfg.Model, userText: turn.Text}
	st.messages = replayHistory(history)
	st.exchangeStart = len(st.messages)
	question := strings.Contains(turn.Text, "?")
	scope := tools.Scope{LegacyID: turn.LegacyID, UserID: turn.UserID}

	log.Info("turn started", "history", len(history), "question", question)

	var resp *llm.Response
	for {
		resp, err = l.modelTurn(ctx, log, g.SystemInstructions, st)
		if err != nil {
			if len(st.records) == 0 {
				return nil, err
			}
			log.Warn("model failed after tools ran, sending degraded reply", "error", err)
			return l.finish(ctx, log, turn, st, prompts.DegradedToolReply, true, start)
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			break
		}
		if st.rounds >= l.cfg.MaxRounds {
			log.Warn("tool round cap reached", "rounds", st.rounds, "pending_tools", len(uses))
			break
		}

		if question {
			if st.preTool == "" && !st.questionAsked {
				l.answerFirst(ctx, log, g.SystemInstructions, st)
			}
			for _, text := range llm.Texts(resp.Content) {
				text = strings.TrimSpace(text)
				if text != "" && !strings.Contains(st.preTool, text) {
					st.preTool = joinText(st.preTool, text)
				}
			}
		}

		st.messages = append(st.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		results := make([]llm.Block, 0, len(uses))
		for _, use := range uses {
			outcome := l.tools.Execute(ctx, scope, use.Name, use.Input)
			st.records = append(st.records, conversation.ToolCallRecord{
				Name:    use.Name,
				Input:   use.Input,
				Outcome: outcome,
			})
			results = append(results, toolResult(use.ID, outcome))
		}
		st.messages = append(st.messages, llm.Message{Role: llm.RoleUser, Content: results})
		st.rounds++
		log.Debug("tool round complete", "round", st.rounds, "tools", len(uses))
	}

	text := strings.TrimSpace(resp.Text())
	if st.preTool != "" && !strings.Contains(text, st.preTool) {
		text = joinText(st.preTool, text)
	}
	return l.finish(ctx, log, turn, st, Shape(text, len(st.records) > 0), false, start)
}

// modelTurn makes one model call with the turn's current messages. An
// empty response is retried once with only the user's message.
func (l *Loop) modelTurn(ctx context.Context, log *slog.Logger, system string, st *turnState) (*llm.Response, error) {
	req := &llm.Request{
		Model:       l.cfg.Model,
		System:      system,
		Messages:    st.messages,
		Tools:       l.specs,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	}
	resp, err := l.callWithRetry(ctx, log, req, st.reduced())
	if err != nil {
		return nil, err
	}
	st.add(resp)

	if len(resp.Content) == 0 && !st.emptyRetried {
		st.emptyRetried = true
		log.Warn("empty model response, retrying with the user message only")
		retry := *req
		retry.Messages = []llm.Message{llm.TextMessage(llm.RoleUser, st.userText)}
		again, err := l.callWithRetry(ctx, log, &retry, retry.Messages)
		if err != nil {
			return nil, err
		}
		st.add(again)
		resp = again
	}
	return resp, nil
}

// answerFirst asks the model, with no tools offered, to answer the
// user's question before the tool results arrive. Its text becomes the
// pre-tool answer. Failures are logged and ignored.
func (l *Loop) answerFirst(ctx context.Context, log *slog.Logger, system string, st *turnState) {
	st.questionAsked = true
	resp, err := l.call(ctx, &llm.Request{
		Model:       l.cfg.Model,
		System:      system,
		Messages:    st.messages,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	})
	if err != nil {
		log.Warn("question pre-answer failed", "error", err)
		return
	}
	st.add(resp)
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return
	}
	st.preTool = text
	st.messages = append(st.messages, llm.TextMessage(llm.RoleAssistant, text))
}

// callWithRetry calls the model and, on failure, retries once with the
// replayed history dropped. The second failure is ErrModelUnavailable.
func (l *Loop) callWithRetry(ctx context.Context, log *slog.Logger, req *llm.Request, reduced []llm.Message) (*llm.Response, error) {
	resp, err := l.call(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, ctx.Err())
	}
	log.Warn("model call failed, retrying with reduced prompt",
		"error", err, "messages", len(req.Messages), "reduced", len(reduced))

	retry := *req
	retry.Messages = reduced
	resp, err = l.call(ctx, &retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return resp, nil
}

func (l *Loop) call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	defer cancel()
	return l.llm.Chat(ctx, req)
}

func (l *Loop) finish(ctx context.Context, log *slog.Logger, turn Turn, st *turnState, reply string, degraded bool, start time.Time) (*Result, error) {
	msg, err := l.conversations.Append(ctx, conversation.Message{
		ConversationID: turn.ConversationID,
		Role:           llm.RoleAssistant,
		Content:        []llm.Block{llm.TextBlock{Text: reply}},
		InputTokens:    st.inputTokens,
		OutputTokens:   st.outputTokens,
		Model:          st.model,
		ToolCalls:      st.records,
	})
	if err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}

	log.Info("turn complete",
		"rounds", st.rounds,
		"tools", len(st.records),
		"input_tokens", st.inputTokens,
		"output_tokens", st.outputTokens,
		"degraded", degraded,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return &Result{Reply: msg, Provider: st.provider, Rounds: st.rounds, Degraded: degraded}, nil
}

func toolResult(id string, outcome tools.Outcome) llm.ToolResultBlock {
	content, err := json.Marshal(outcome)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
	}
	return llm.ToolResultBlock{ToolUseID: id, Content: string(content), IsError: !outcome.Success}
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}
