// Package assistant lets a chat model drive the tool flows from free text.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/tool"
)

var ErrEmptyMessage = errors.New("message is empty")

type Config struct {
	MaxToolRounds int           `split_words:"true" default:"4"`
	HistoryLimit  int           `split_words:"true" default:"40"`
	IdleTimeout   time.Duration `split_words:"true" default:"30m"`
	SweepInterval time.Duration `split_words:"true" default:"5m"`
}

type conversation struct {
	mu       sync.Mutex
	messages []*schema.Message
	// lastActive is guarded by Assistant.mu.
	lastActive time.Time
}

type Assistant struct {
	runner  compose.Runnable[map[string]any, *schema.Message]
	gateway contract.ToolGateway
	allowed map[string]struct{}
	cfg     Config

	mu            sync.Mutex
	conversations map[string]*conversation

	cronMu    sync.Mutex
	scheduler *cron.Cron

	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Assistant)

func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Assistant) {
		a.logger = logger
	}
}

func New(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	gateway contract.ToolGateway,
	tools []*schema.ToolInfo,
	systemPrompt string,
	cfg Config,
	opts ...Option,
) (*Assistant, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if gateway == nil {
		return nil, errors.New("tool gateway is required")
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 4
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind flow tools: %v", contract.ErrModelInvoke, err)
	}
	runner, err := compileChatGraph(ctx, toolModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrModelInvoke, err)
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowed[t.Name] = struct{}{}
	}

	a := &Assistant{
		runner:        runner,
		gateway:       gateway,
		allowed:       allowed,
		cfg:           cfg,
		conversations: make(map[string]*conversation),
		now:           time.Now,
		logger:        log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Reply runs one user turn: the model may call tools for a few rounds
// before it answers in text. Turns of one conversation are serialized.
func (a *Assistant) Reply(ctx context.Context, conversationID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	conv := a.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	msgs := append(append([]*schema.Message(nil), conv.messages...), schema.UserMessage(text))
	for round := 0; round <= a.cfg.MaxToolRounds; round++ {
		out, err := a.runner.Invoke(ctx, map[string]any{
			"history": msgs,
			"today":   a.now().Format("Monday, January 2, 2006"),
		})
		if err != nil {
			return "", fmt.Errorf("%w: assistant invoke: %v", contract.ErrModelInvoke, err)
		}
		if out == nil {
			return "", fmt.Errorf("%w: empty model response", contract.ErrSchemaViolation)
		}
		msgs = append(msgs, out)

		if len(out.ToolCalls) == 0 {
			reply := strings.TrimSpace(out.Content)
			if reply == "" {
				return "", fmt.Errorf("%w: assistant reply is empty", contract.ErrSchemaViolation)
			}
			conv.messages = trimHistory(msgs, a.cfg.HistoryLimit)
			return reply, nil
		}

		toolMsgs, err := a.runTools(ctx, out.ToolCalls)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, toolMsgs...)
	}

	return "", fmt.Errorf("%w: no reply after %d tool rounds", contract.ErrSchemaViolation, a.cfg.MaxToolRounds)
}

// Reset forgets a conversation's history. Flow records are left to expire.
func (a *Assistant) Reset(conversationID string) {
	a.mu.Lock()
	delete(a.conversations, conversationID)
	a.mu.Unlock()
}

func (a *Assistant) conversation(id string) *conversation {
	a.mu.Lock()
	defer a.mu.Unlock()

	conv, ok := a.conversations[id]
	if !ok {
		conv = &conversation{}
		a.conversations[id] = conv
	}
	conv.lastActive = a.now()
	return conv
}

// Sweep forgets conversations idle for longer than IdleTimeout and returns
// how many were dropped. A conversation in the middle of a turn is kept.
func (a *Assistant) Sweep() int {
	now := a.now()

	a.mu.Lock()
	evicted := 0
	for id, conv := range a.conversations {
		if now.Sub(conv.lastActive) <= a.cfg.IdleTimeout {
			continue
		}
		if !conv.mu.TryLock() {
			continue
		}
		delete(a.conversations, id)
		conv.mu.Unlock()
		evicted++
	}
	remaining := len(a.conversations)
	a.mu.Unlock()

	if evicted > 0 {
		a.logger.Info().
			Int("evicted", evicted).
			Int("remaining", remaining).
			Dur("idle_timeout", a.cfg.IdleTimeout).
			Msg("conversation sweep evicted idle conversations")
	}
	return evicted
}

// StartCleanup schedules Sweep every interval (SweepInterval when
// interval <= 0). Calling it while a schedule is running is a no-op.
func (a *Assistant) StartCleanup(interval time.Duration) error {
	if interval <= 0 {
		interval = a.cfg.SweepInterval
	}
	if interval < time.Second {
		return fmt.Errorf("sweep interval %s is below one second", interval)
	}

	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if a.scheduler != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() { a.Sweep() }); err != nil {
		return fmt.Errorf("schedule conversation sweep: %w", err)
	}
	c.Start()
	a.scheduler = c
	return nil
}

func (a *Assistant) StopCleanup() {
	a.cronMu.Lock()
	c := a.scheduler
	a.scheduler = nil
	a.cronMu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (a *Assistant) runTools(ctx context.Context, calls []schema.ToolCall) ([]*schema.Message, error) {
	reqs, err := toToolRequests(calls)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		if _, ok := a.allowed[req.Tool]; !ok {
			return nil, fmt.Errorf("%w: tool=%s is not offered", contract.ErrSchemaViolation, req.Tool)
		}
	}

	results, err := a.gateway.Execute(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("execute tool calls: %w", err)
	}
	if len(results) != len(reqs) {
		return nil, fmt.Errorf("%w: %d tool results for %d calls", contract.ErrSchemaViolation, len(results), len(reqs))
	}

	msgs := make([]*schema.Message, 0, len(results))
	for i, res := range results {
		payload, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal tool result: %w", err)
		}
		a.logger.Debug().Str("tool", res.Tool).RawJSON("result", payload).Msg("tool call answered")
		msgs = append(msgs, schema.ToolMessage(string(payload), reqs[i].ID))
	}
	return msgs, nil
}

func toToolRequests(calls []schema.ToolCall) ([]contract.ToolRequest, error) {
	reqs := make([]contract.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contract.ErrSchemaViolation)
		}

		var args map[string]any
		if err := tool.DecodeJSON(call.Function.Arguments, &args); err != nil {
			return nil, fmt.Errorf("invalid tool args for tool=%s: %w", name, err)
		}

		reqs = append(reqs, contract.ToolRequest{
			ID:   call.ID,
			Tool: name,
			Args: args,
		})
	}
	return reqs, nil
}

// trimHistory keeps at most limit messages and never starts the kept window
// in the middle of a tool exchange.
func trimHistory(msgs []*schema.Message, limit int) []*schema.Message {
	if len(msgs) <= limit {
		return msgs
	}
	kept := msgs[len(msgs)-limit:]
	for len(kept) > 0 && kept[0].Role != schema.User {
		kept = kept[1:]
	}
	return append([]*schema.Message(nil), kept...)
}
