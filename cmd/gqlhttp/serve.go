package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/hanpama/gqlhttp/internal/config"
	engine "github.com/hanpama/gqlhttp/internal/engine"
	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	logging "github.com/hanpama/gqlhttp/internal/logging"
	metrics "github.com/hanpama/gqlhttp/internal/metrics"
	otel "github.com/hanpama/gqlhttp/internal/otel"
	server "github.com/hanpama/gqlhttp/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL HTTP server",
		Long: `Run the GraphQL HTTP server.

Settings come from the config file, GQLHTTP_* environment variables and
flags, later sources overriding earlier ones. Without --schema the built-in
demo schema is served.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "config file (default ./gqlhttp.yaml)")
	f.String("addr", ":8080", "HTTP listen address")
	f.String("path", "/graphql", "GraphQL endpoint path")
	f.Bool("pretty", false, "pretty-print JSON responses")
	f.Bool("graphiql", true, "serve GraphiQL to browsers")
	f.String("schema", "", "schema file served by the demo resolvers")
	f.String("log-level", "info", "log level")
	f.String("log-env", "production", "log environment: development or production")
	f.String("otel-endpoint", "", "OTLP/gRPC collector endpoint")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	mux, shutdownTelemetry, err := buildMux(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("graphql server listening",
			zap.String("addr", cfg.Server.Addr), zap.String("path", cfg.Server.Path))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// buildMux wires the handler, telemetry and metrics for cfg.
func buildMux(cfg *config.Config, logger *zap.Logger) (*http.ServeMux, func(context.Context) error, error) {
	sdl := demoSDL
	if cfg.Schema.File != "" {
		b, err := os.ReadFile(cfg.Schema.File)
		if err != nil {
			return nil, nil, errors.Wrap(err, "read schema")
		}
		sdl = string(b)
	}
	eng, err := engine.NewGophers(sdl, &demoResolver{clock: time.Now})
	if err != nil {
		return nil, nil, err
	}

	bus := eventbus.New()
	logging.Subscribe(bus, logger)
	shutdown, err := otel.Setup(bus, cfg.OTel.Endpoint, cfg.OTel.Service)
	if err != nil {
		return nil, nil, errors.Wrap(err, "otel setup")
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(bus, reg)
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
	}

	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithEndpoint(cfg.Server.Path),
		server.WithLogger(logger),
		server.WithEventBus(bus),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	h, err := server.New(eng, eng.Schema(), opts...)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, errors.Wrap(err, "server init")
	}
	mux.Handle(cfg.Server.Path, h)
	return mux, shutdown, nil
}
