package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	orchestratorx "github.com/tanpawarit/a2a-host-orchestrator/agent/agents/orchestrator"
	plannerx "github.com/tanpawarit/a2a-host-orchestrator/agent/agents/planner"
	specialistx "github.com/tanpawarit/a2a-host-orchestrator/agent/agents/specialist"
	apix "github.com/tanpawarit/a2a-host-orchestrator/agent/api"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/a2a-host-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/a2a-host-orchestrator/agent/prompt"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
	configx "github.com/tanpawarit/a2a-host-orchestrator/pkg/config"
	_ "github.com/tanpawarit/a2a-host-orchestrator/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/a2a-host-orchestrator/pkg/openrouter"
)

var version = "dev"

type AppConfig struct {
	Port            string        `envconfig:"PORT" default:"8083"`
	AgentsFile      string        `envconfig:"AGENTS_FILE" default:"agents.yaml"`
	Planner         string        `envconfig:"PLANNER" default:"rules"`
	SessionBackend  string        `envconfig:"SESSION_BACKEND" default:"memory"`
	SessionIdleTTL  time.Duration `envconfig:"SESSION_IDLE_TTL" default:"0"`
	JanitorInterval time.Duration `envconfig:"JANITOR_INTERVAL" default:"1m"`
	ProbeInterval   time.Duration `envconfig:"PROBE_INTERVAL" default:"30s"`
	ProbeTimeout    time.Duration `envconfig:"PROBE_TIMEOUT" default:"2s"`
}

// AgentsFile is the YAML document listing specialist agents and the keyword
// rules used by the rules planner.
type AgentsFile struct {
	Agents []contractx.AgentEndpoint `mapstructure:"agents"`
	Rules  []plannerx.Rule           `mapstructure:"rules"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("host orchestrator stopped")
	}
}

func run() error {
	appCfg := configx.MustNew[AppConfig]("")
	orchestratorCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agentsFile, err := configx.LoadFile[AgentsFile](appCfg.AgentsFile)
	if err != nil {
		return err
	}

	registry, err := specialistx.NewRegistry(agentsFile.Agents...)
	if err != nil {
		return fmt.Errorf("failed to build agent registry: %w", err)
	}
	log.Info().Strs("agents", registry.List()).Msg("agent registry loaded")

	store, closeStore, err := newSessionStore(ctx, *appCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	planner, err := newPlanner(ctx, *appCfg, agentsFile.Rules, registry)
	if err != nil {
		return err
	}

	orch, err := orchestratorx.New(store, planner, registry, specialistx.NewHTTPClient(), *orchestratorCfg)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	prober := specialistx.NewProber(registry, appCfg.ProbeTimeout, nil)
	go prober.Run(ctx, appCfg.ProbeInterval)
	if appCfg.SessionIdleTTL > 0 {
		go store.RunJanitor(ctx, appCfg.JanitorInterval, appCfg.SessionIdleTTL)
	}

	handler := apix.NewHandler(orch, registry, apix.Info{
		Service:     "a2a-host-orchestrator",
		Description: "Routes user messages to specialist agents and aggregates their replies",
		Version:     version,
	})

	server := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Dur("request_budget", orch.Budget()).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func newSessionStore(ctx context.Context, appCfg AppConfig) (*statex.MemoryStore, func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(appCfg.SessionBackend)) {
	case "", "memory":
		return statex.NewMemoryStore(), noop, nil
	case "upstash":
		upstashCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		snap, err := statex.NewUpstashRedisStore(*upstashCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to build upstash store: %w", err)
		}
		return statex.NewMemoryStore(statex.WithSnapshotter(snap)), noop, nil
	case "postgres":
		pgCfg := configx.MustNew[statex.PostgresConfig]("POSTGRES")
		snap, err := statex.NewPostgresStore(ctx, *pgCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to build postgres store: %w", err)
		}
		closeFn := func() {
			if err := snap.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close postgres store")
			}
		}
		return statex.NewMemoryStore(statex.WithSnapshotter(snap)), closeFn, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown session backend %q", contractx.ErrValidation, appCfg.SessionBackend)
	}
}

func newPlanner(ctx context.Context, appCfg AppConfig, rules []plannerx.Rule, registry *specialistx.Registry) (contractx.Planner, error) {
	switch strings.ToLower(strings.TrimSpace(appCfg.Planner)) {
	case "", "rules":
		p, err := plannerx.NewRulePlanner(rules)
		if err != nil {
			return nil, fmt.Errorf("failed to build rules planner: %w", err)
		}
		return p, nil
	case "llm":
		llmCfg := configx.MustNew[llmx.Config]("LLM")
		if err := llmCfg.Validate(); err != nil {
			return nil, err
		}
		plannerCfg := llmCfg.Planner()

		if llmCfg.VerifyModel {
			client := openrouterx.NewClient(plannerCfg)
			if client == nil {
				return nil, errors.New("failed to initialize openrouter client")
			}
			if err := openrouterx.VerifyModel(ctx, client, plannerCfg.Model); err != nil {
				return nil, err
			}
		}

		chatModel, err := plannerCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build planner model: %w", err)
		}
		p, err := plannerx.NewLLMPlanner(ctx, chatModel, registry.Tools(), promptx.LoadPromptSet().Planner)
		if err != nil {
			return nil, fmt.Errorf("failed to build llm planner: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown planner %q", contractx.ErrValidation, appCfg.Planner)
	}
}
