package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/custodia/internal/audit"
	"github.com/dropDatabas3/custodia/internal/auth"
	"github.com/dropDatabas3/custodia/internal/authz"
	"github.com/dropDatabas3/custodia/internal/cache"
	"github.com/dropDatabas3/custodia/internal/config"
	"github.com/dropDatabas3/custodia/internal/email"
	httpx "github.com/dropDatabas3/custodia/internal/http"
	"github.com/dropDatabas3/custodia/internal/http/handlers"
	jwtx "github.com/dropDatabas3/custodia/internal/jwt"
	"github.com/dropDatabas3/custodia/internal/metrics"
	"github.com/dropDatabas3/custodia/internal/observability/logger"
	"github.com/dropDatabas3/custodia/internal/rate"
	"github.com/dropDatabas3/custodia/internal/store/pg"
	migrations "github.com/dropDatabas3/custodia/migrations/postgres"
)

func main() {
	root := &cobra.Command{
		Use:   "custodia",
		Short: "Core de autenticación y autorización del sistema clínico",
	}

	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("CUSTODIA_CONFIG"), "ruta del YAML de configuración")

	var down bool
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica el esquema de base de datos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cfgPath, down)
		},
	}
	migrate.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("CUSTODIA_CONFIG"), "ruta del YAML de configuración")
	migrate.Flags().BoolVar(&down, "down", false, "revierte las migraciones")

	root.AddCommand(serve, migrate)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer store.Close()

	// ---- Redis (rate limiting) ----
	// El cliente se construye acá y se inyecta; nadie más lo abre ni lo
	// cierra.
	var redisClient *rdb.Client
	if cfg.Rate.Enabled || cfg.Cache.Kind == "redis" {
		redisClient = rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
	}

	// ---- Cache de códigos de reset ----
	codes, err := cache.New(cache.Config{
		Kind:     cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = codes.Close() }()

	// ---- Métricas ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- Tokens ----
	issuer := jwtx.NewIssuer(cfg.JWT.Issuer, []byte(cfg.JWT.Secret))
	issuer.AccessTTL = config.Dur(cfg.JWT.AccessTTL)
	issuer.RefreshTTL = config.Dur(cfg.JWT.RefreshTTL)
	issuer.ResetTTL = config.Dur(cfg.JWT.ResetTTL)

	// ---- Rate limiting ----
	prefix := cfg.Cache.Redis.Prefix
	var loginLimiter, forgotLimiter rate.Limiter
	var guard *rate.Guard
	if cfg.Rate.Enabled {
		loginLimiter = rate.NewSlidingWindowLimiter(redisClient, prefix+":rl:login:",
			cfg.Rate.Login.Limit, config.Dur(cfg.Rate.Login.Window))
		forgotLimiter = rate.NewSlidingWindowLimiter(redisClient, prefix+":rl:forgot:",
			cfg.Rate.Forgot.Limit, config.Dur(cfg.Rate.Forgot.Window))
		guard = rate.NewGuard(redisClient, prefix+":", config.Dur(cfg.Rate.FailureTTL))
	}

	// ---- Auditoría ----
	dispatcher := audit.NewDispatcher(&audit.RepoSink{Repo: store}, 256)
	defer dispatcher.Close()

	// ---- Email ----
	var mailer auth.Mailer
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From,
			cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		log.Warn("smtp sin configurar, los códigos de reset solo se loguean")
		mailer = email.LogSender{}
	}

	// ---- Orquestador ----
	svc := &auth.Service{
		Users:         store,
		Resolver:      authz.NewResolver(store, config.Dur(cfg.Auth.Permissions.CacheTTL), "/"),
		Tokens:        issuer,
		LoginLimiter:  loginLimiter,
		ForgotLimiter: forgotLimiter,
		Guard:         guard,
		Audit:         dispatcher,
		Codes:         codes,
		Mail:          mailer,
		Metrics:       m,
		RateEnabled:   cfg.Rate.Enabled,
		FailOpen:      cfg.Rate.FailOpen,
		CodeTTL:       config.Dur(cfg.Auth.ResetCode.TTL),
		CodeDigits:    cfg.Auth.ResetCode.Digits,
	}

	// ---- HTTP ----
	ck := handlers.CookieConfig{
		AccessName:  cfg.Auth.Cookies.AccessName,
		RefreshName: cfg.Auth.Cookies.RefreshName,
		CSRFName:    cfg.Auth.Cookies.CSRFName,
		ResetName:   cfg.Auth.Cookies.ResetName,
		Domain:      cfg.Auth.Cookies.Domain,
		Secure:      cfg.Auth.Cookies.Secure,
		AccessTTL:   issuer.AccessTTL,
		RefreshTTL:  issuer.RefreshTTL,
		ResetTTL:    issuer.ResetTTL,
	}

	deps := map[string]handlers.Pinger{"postgres": store}
	if redisClient != nil {
		deps["redis"] = redisPinger{redisClient}
	}

	router := httpx.NewRouter(httpx.RouterConfig{
		Auth:       &handlers.Auth{Service: svc, Cookies: ck},
		Health:     &handlers.Health{Deps: deps},
		CSRFHeader: cfg.Auth.CSRFHeader,
		CSRFCookie: cfg.Auth.Cookies.CSRFName,
	})

	apiSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("servidor http escuchando", logger.Key(cfg.Server.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("métricas escuchando", logger.Key(cfg.Server.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("apagando servidor")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutCtx)
		}
		return apiSrv.Shutdown(shutCtx)
	})

	return g.Wait()
}

func runMigrate(cfgPath string, down bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer store.Close()

	if down {
		return store.RunMigrationsDown(ctx, migrations.FS, migrations.Dir)
	}
	return store.RunMigrations(ctx, migrations.FS, migrations.Dir)
}

// redisPinger adapta el cliente redis al probe de readiness.
type redisPinger struct{ c *rdb.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.c.Ping(ctx).Err()
}
