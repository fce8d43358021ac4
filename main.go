package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-toolflow/agent/assistant"
	"github.com/tanpawarit/chative-toolflow/agent/auth"
	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/llm"
	"github.com/tanpawarit/chative-toolflow/agent/orchestrator"
	"github.com/tanpawarit/chative-toolflow/agent/persist"
	"github.com/tanpawarit/chative-toolflow/agent/prompt"
	"github.com/tanpawarit/chative-toolflow/agent/state"
	"github.com/tanpawarit/chative-toolflow/agent/tool"
	"github.com/tanpawarit/chative-toolflow/agent/toolflow"
	configx "github.com/tanpawarit/chative-toolflow/pkg/config"
	logx "github.com/tanpawarit/chative-toolflow/pkg/logger"
	_ "github.com/tanpawarit/chative-toolflow/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/chative-toolflow/pkg/openrouter"
)

type AppConfig struct {
	FlowStore   string `envconfig:"FLOW_STORE" default:"memory"`
	LocalUserID string `envconfig:"LOCAL_USER_ID" default:"local-user"`
}

const (
	flowStoreMemory  = "memory"
	flowStoreUpstash = "upstash"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("toolflow stopped")
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	appCfg := configx.MustNew[AppConfig]("")
	flowCfg := configx.MustNew[toolflow.Config]("TOOLFLOW")

	store, cleanup, err := newFlowStore(appCfg.FlowStore)
	if err != nil {
		return err
	}
	defer cleanup()

	contacts, events, closeRepo, err := newRepositories(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	identity, ctx, err := newIdentity(ctx, appCfg.LocalUserID)
	if err != nil {
		return err
	}

	contactFlow := toolflow.NewContactExecutor(store, identity, contacts, *flowCfg,
		toolflow.WithLogger(logx.Component("contact_flow")))
	eventFlow := toolflow.NewEventExecutor(store, identity, events, *flowCfg,
		toolflow.WithLogger(logx.Component("event_flow")))

	tools, executor := tool.Build(contactFlow, eventFlow)
	gateway, err := orchestrator.New(executor)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	llmCfg := configx.MustNew[llm.Config]("OPENROUTER")
	if !llmCfg.Enabled() {
		log.Info().Msg("OPENROUTER_API_KEY not set, driving tools directly")
		return toolREPL(ctx, gateway, in, out)
	}
	if err := llmCfg.Validate(); err != nil {
		return err
	}

	routerCfg := llmCfg.OpenRouter()
	if llmCfg.VerifyModel {
		if err := openrouterx.VerifyModel(ctx, routerCfg); err != nil {
			return err
		}
	}
	chatModel, err := routerCfg.New(ctx)
	if err != nil {
		return err
	}

	assistantCfg := configx.MustNew[assistant.Config]("ASSISTANT")
	bot, err := assistant.New(ctx, chatModel, gateway, tools, prompt.LoadPromptSet().Assistant, *assistantCfg,
		assistant.WithLogger(logx.Component("assistant")))
	if err != nil {
		return err
	}
	if err := bot.StartCleanup(assistantCfg.SweepInterval); err != nil {
		return fmt.Errorf("start conversation sweep: %w", err)
	}
	defer bot.StopCleanup()
	return chatREPL(ctx, bot, in, out)
}

func newFlowStore(kind string) (state.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", flowStoreMemory:
		cfg := configx.MustNew[state.MemoryStoreConfig]("FLOW")
		store := state.NewMemoryStore(*cfg, state.WithLogger(logx.Component("flow_store")))
		if err := store.StartCleanup(cfg.SweepInterval); err != nil {
			return nil, nil, fmt.Errorf("start flow sweep: %w", err)
		}
		return store, store.StopCleanup, nil
	case flowStoreUpstash:
		cfg, err := configx.New[state.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, nil, err
		}
		store, err := state.NewUpstashRedisStore(*cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown flow store %q", contract.ErrValidation, kind)
	}
}

type repository interface {
	contract.ContactCreator
	contract.EventCreator
}

func newRepositories(ctx context.Context) (contract.ContactCreator, contract.EventCreator, func(), error) {
	pgCfg := configx.MustNew[persist.PostgresConfig]("POSTGRES")
	if strings.TrimSpace(pgCfg.DSN) == "" {
		var repo repository = persist.NewMemoryRepository()
		log.Info().Msg("POSTGRES_DSN not set, keeping contacts and events in memory")
		return repo, repo, func() {}, nil
	}

	repo, err := persist.NewPostgresRepository(*pgCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := repo.CreateSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, nil, err
	}
	closeRepo := func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("close postgres")
		}
	}
	return repo, repo, closeRepo, nil
}

// newIdentity returns the provider and a context carrying the local user's
// token when JWT verification is configured.
func newIdentity(ctx context.Context, userID string) (contract.IdentityProvider, context.Context, error) {
	jwtCfg := configx.MustNew[auth.JWTConfig]("JWT")
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return auth.StaticProvider{UserID: userID}, ctx, nil
	}

	provider, err := auth.NewJWTProvider(*jwtCfg)
	if err != nil {
		return nil, ctx, err
	}
	token, err := auth.GenerateToken(*jwtCfg, userID, 12*time.Hour)
	if err != nil {
		return nil, ctx, err
	}
	return provider, auth.WithToken(ctx, token), nil
}

func chatREPL(ctx context.Context, bot *assistant.Assistant, in io.Reader, out io.Writer) error {
	conversationID := uuid.NewString()
	fmt.Fprintln(out, "Ask me to save a contact or an event. /reset starts over, /quit exits.")

	scanner := bufio.NewScanner(in)
	for printPrompt(out, "you> ") && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			bot.Reset(conversationID)
			conversationID = uuid.NewString()
			fmt.Fprintln(out, "(new conversation)")
			continue
		}

		reply, err := bot.Reply(ctx, conversationID, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("conversation_id", conversationID).Msg("assistant reply failed")
			fmt.Fprintln(out, "bot> Sorry, something went wrong. Please try again.")
			continue
		}
		fmt.Fprintf(out, "bot> %s\n", reply)
	}
	return scanner.Err()
}

// toolREPL reads one tool call per line as {"tool": ..., "args": {...}}.
// "schema <tool>" prints the tool's argument schema.
func toolREPL(ctx context.Context, gateway contract.ToolGateway, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, `Send {"tool":"contact_flow","args":{"step":"start"}} or "schema event_flow". /quit exits.`)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	scanner := bufio.NewScanner(in)
	for printPrompt(out, "tool> ") && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "schema "):
			raw, err := tool.JSONSchema(strings.TrimSpace(strings.TrimPrefix(line, "schema ")))
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			fmt.Fprintln(out, string(raw))
			continue
		}

		var req contract.ToolRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintf(out, "invalid tool call: %v\n", err)
			continue
		}
		results, err := gateway.Execute(ctx, []contract.ToolRequest{req})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, err)
			continue
		}
		if err := enc.Encode(results[0]); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func printPrompt(out io.Writer, p string) bool {
	fmt.Fprint(out, p)
	return true
}
