package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/p-n-ai/pai-adaptive/internal/ai"
	"github.com/p-n-ai/pai-adaptive/internal/api"
	"github.com/p-n-ai/pai-adaptive/internal/catalog"
	"github.com/p-n-ai/pai-adaptive/internal/coach"
	"github.com/p-n-ai/pai-adaptive/internal/generation"
	"github.com/p-n-ai/pai-adaptive/internal/platform/broker"
	"github.com/p-n-ai/pai-adaptive/internal/platform/cache"
	"github.com/p-n-ai/pai-adaptive/internal/platform/config"
	"github.com/p-n-ai/pai-adaptive/internal/platform/database"
	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
	"github.com/p-n-ai/pai-adaptive/internal/reminder"
	"github.com/p-n-ai/pai-adaptive/internal/store"
)

const generationQueue = "learning.generation"

// checker reports whether a dependency is reachable.
type checker struct {
	name  string
	check func(context.Context) error
}

// app holds every long-lived component of the server.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	engine     *coach.Engine
	db         *database.DB
	cache      *cache.Cache
	broker     *broker.Broker
	worker     *generation.Worker
	dispatcher *generation.Dispatcher
	reminders  *reminder.Scheduler
	checks     []checker

	consumerDone chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &app{cfg: cfg, metrics: metrics.New(reg)}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, events, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var results coach.ResultCache
	var locks generation.Locker = generation.NewMemoryLocks()
	if cfg.Cache.URL != "" {
		a.cache, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		results = cache.NewResults(a.cache, "learning:results", cfg.Cache.TTL)
		locks = cache.NewLocks(a.cache, "learning:locks")
		a.checks = append(a.checks, checker{"cache", a.cache.HealthCheck})
	} else {
		slog.Warn("cache URL is empty, analytics caching is disabled")
	}

	a.broker, err = broker.New(cfg.Broker.URL, cfg.Broker.Exchange)
	if err != nil {
		return nil, err
	}

	docs, err := catalog.NewLoader(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	engineCfg := coach.EngineConfig{
		Store:      st,
		Events:     events,
		Cache:      results,
		Catalog:    docs,
		Metrics:    a.metrics,
		RetryAfter: cfg.Generation.RetryAfter,
	}

	if router := newRouter(cfg.AI); router.HasProvider() {
		gen, err := generation.NewGenerator(router, generation.Options{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
			Timeout:     cfg.Generation.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
		opts := []generation.WorkerOption{generation.WithMetrics(a.metrics)}
		if a.broker.Enabled() {
			opts = append(opts, generation.WithPublisher(a.broker))
		}
		a.worker = generation.NewWorker(gen, st, docs, locks, opts...)

		dcfg := generation.DispatcherConfig{
			Locks:   locks,
			LockTTL: cfg.Generation.LockTTL,
			Timeout: cfg.Generation.Timeout,
			Metrics: a.metrics,
		}
		if a.broker.Enabled() {
			dcfg.Publisher = a.broker
		} else {
			dcfg.Local = a.worker
		}
		a.dispatcher, err = generation.NewDispatcher(dcfg)
		if err != nil {
			return nil, fmt.Errorf("creating dispatcher: %w", err)
		}
		engineCfg.Generation = a.dispatcher
		engineCfg.Explainer = gen
	} else {
		slog.Warn("no AI provider configured, question generation is disabled")
	}

	a.engine = coach.NewEngine(engineCfg)

	if cfg.Reminder.Enabled {
		a.reminders = reminder.NewScheduler(reminder.NewSweeper(st, a.broker, a.metrics), cfg.Reminder.Interval)
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, coach.EventLogger, error) {
	if a.cfg.Database.Driver != "postgres" {
		slog.Info("using in-memory store")
		return store.NewMemoryStore(), coach.NopEventLogger{}, nil
	}

	db, err := database.New(ctx, database.Options{
		URL:      a.cfg.Database.URL,
		MaxConns: a.cfg.Database.MaxConns,
		MinConns: a.cfg.Database.MinConns,
		AppName:  "pai-adaptive",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.db = db
	a.checks = append(a.checks, checker{"database", db.HealthCheck})

	st, err := store.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}
	return st, coach.NewPostgresEventLogger(db.Pool), nil
}

// newRouter registers every configured provider. Generation prefers the
// hosted models and falls back to Ollama.
func newRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register(ai.NewOpenAIProvider(cfg.OpenAI.APIKey, ai.WithDefaultModel(cfg.OpenAI.Model)))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey, ai.WithAnthropicModel(cfg.Anthropic.Model))
		if err != nil {
			slog.Warn("skipping anthropic provider", "error", err)
		} else {
			router.Register(p)
		}
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register(ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register(ai.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model))
	}
	router.Prefer(ai.TaskExplanation, "anthropic", "openai")
	return router
}

// start launches the generation consumer and the reminder sweep.
func (a *app) start(ctx context.Context) error {
	if a.worker != nil && a.broker.Enabled() {
		a.consumerDone = make(chan struct{})
		go func() {
			defer close(a.consumerDone)
			err := a.broker.Consume(ctx, generationQueue, []string{generation.RoutingKeyRequested}, 2, a.worker.HandleMessage)
			if err != nil {
				slog.Error("generation consumer stopped", "error", err)
			}
		}()
	}
	if a.reminders != nil {
		if err := a.reminders.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// stop waits for background work after the HTTP server has drained.
func (a *app) stop() {
	if a.reminders != nil {
		a.reminders.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.consumerDone != nil {
		<-a.consumerDone
	}
}

func (a *app) close() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			slog.Warn("closing broker", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// mux creates the HTTP router with health, metrics and API endpoints.
func (a *app) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", readyzHandler(a.checks))
	mux.Handle("GET /metrics", a.metrics.Handler())
	api.NewHandler(a.engine, a.metrics).Register(mux)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func readyzHandler(checks []checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		var errs []error
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := errors.Join(errs...); err != nil {
			slog.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
