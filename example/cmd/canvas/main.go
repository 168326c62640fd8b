// Command canvas runs the demo agent-UI server: one SSE endpoint streams run
// events, one POST endpoint receives user actions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"goa.design/canvas/example"
	"goa.design/canvas/features/model/anthropic"
	"goa.design/canvas/features/model/middleware"
	"goa.design/canvas/features/model/openai"
	"goa.design/canvas/features/transport/sse"
	"goa.design/canvas/runtime/agents"
	"goa.design/canvas/runtime/artifacts"
	artifactsmem "goa.design/canvas/runtime/artifacts/memory"
	artifactsredis "goa.design/canvas/runtime/artifacts/redis"
	"goa.design/canvas/runtime/model"
	"goa.design/canvas/runtime/run"
	"goa.design/canvas/runtime/toolloop"
	"goa.design/canvas/runtime/uitools"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		httpF   = flag.String("http", "", "HTTP listen address (overrides config)")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := example.LoadConfig(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}
	if *httpF != "" {
		cfg.HTTP = *httpF
	}

	client, err := buildModelClient(cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}

	tools := uitools.NewRegistry()
	if err := example.RegisterTools(tools); err != nil {
		log.Fatal(ctx, err)
	}
	specialists := agents.NewRegistry()
	if err := example.RegisterAgents(specialists); err != nil {
		log.Fatal(ctx, err)
	}
	store, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}

	runner, err := run.NewRunner(run.Options{
		Model:     client,
		Tools:     tools,
		Agents:    specialists,
		Artifacts: store,
		Loop: toolloop.Options{
			MaxIterations: cfg.Loop.MaxIterations,
			ContainerKind: cfg.Loop.ContainerKind,
		},
		Deadline: cfg.Deadline,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/stream", sse.NewStreamHandler(runner))
	mux.Handle("/actions", sse.NewActionHandler(runner))

	srv := &http.Server{
		Addr:        cfg.HTTP,
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "listening on %s (provider %s, model %s, %d tools)",
			cfg.HTTP, cfg.Provider, cfg.Model, tools.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "shutdown")
	}
	log.Printf(ctx, "exited")
}

func buildModelClient(cfg *example.Config) (model.Client, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	var client model.Client
	switch cfg.Provider {
	case "openai":
		client, err = openai.NewFromAPIKey(key, cfg.Model)
	case "anthropic":
		client, err = anthropic.NewFromAPIKey(key, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitTPM > 0 {
		limiter := middleware.NewAdaptiveRateLimiter(cfg.RateLimitTPM, 2*cfg.RateLimitTPM)
		client = limiter.Middleware()(client)
	}
	return client, nil
}

func buildArtifactStore(ctx context.Context, cfg *example.Config) (artifacts.Store, error) {
	if cfg.Redis.Addr == "" {
		log.Printf(ctx, "artifact store: in-memory")
		return artifactsmem.New(artifactsmem.Options{TTL: cfg.ArtifactTTL}), nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Printf(ctx, "artifact store: redis at %s", cfg.Redis.Addr)
	return artifactsredis.New(artifactsredis.Options{Client: client, TTL: cfg.ArtifactTTL})
}
