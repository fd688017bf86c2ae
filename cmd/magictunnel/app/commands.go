// Package app provides the entry point for the magictunnel command-line
// application.
package app

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/client"
	"github.com/magictunnel/magictunnel/pkg/vmcp/config"
	"github.com/magictunnel/magictunnel/pkg/vmcp/discovery"
	"github.com/magictunnel/magictunnel/pkg/vmcp/embedding"
	"github.com/magictunnel/magictunnel/pkg/vmcp/llmclient"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
	"github.com/magictunnel/magictunnel/pkg/vmcp/router"
	"github.com/magictunnel/magictunnel/pkg/vmcp/server"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
	"github.com/magictunnel/magictunnel/pkg/vmcp/telemetry"
)

var rootCmd = &cobra.Command{
	Use:               "magictunnel",
	DisableAutoGenTag: true,
	Short:             "MagicTunnel - a protocol-agnostic MCP proxy with smart tool discovery",
	Long: `MagicTunnel aggregates a set of upstream Model Context Protocol servers behind
one proxy endpoint. It exposes their tools, resources, and prompts to
clients over WebSocket, SSE, and streaming HTTP (stdio is used only to
reach upstream servers), routes a tool call through
whichever backend mechanism the tool needs (subprocess, HTTP, gRPC,
GraphQL, WebSocket, SSE, database, or LLM), and — when asked — ranks and
invokes the right tool for a free-form natural-language request via a
hybrid rule/semantic/LLM discovery engine.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the magictunnel CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the magictunnel configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MagicTunnel proxy",
		Long: `Start the proxy. It reads the configuration file named by --config, loads
the static and dynamic tool catalog, and begins accepting downstream client
connections on every transport the configuration enables.`,
		RunE: runServe,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("magictunnel version: %s", getVersion())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := viper.GetString("config")
			if path == "" {
				return fmt.Errorf("no configuration file specified, use --config")
			}
			cfg, err := config.Load(path, config.OSReader{})
			if err != nil {
				return err
			}
			logger.Infof("configuration is valid")
			logger.Infof("  name: %s", cfg.Name)
			logger.Infof("  backends: %d", len(cfg.Backends))
			logger.Infof("  static tools path: %s", cfg.Registry.StaticToolsPath)
			return nil
		},
	}
}

func getVersion() string { return "dev" }

// runServe wires every collaborator package into one running Server and
// blocks until the process is signaled to stop.
//
//nolint:gocyclo // wiring a proxy's worth of collaborators in one place
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	path := viper.GetString("config")
	if path == "" {
		return fmt.Errorf("no configuration file specified, use --config")
	}

	cfg, err := config.Load(path, config.OSReader{})
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger.Infof("loaded configuration %q with %d backends", cfg.Name, len(cfg.Backends))

	// sharedSessions tracks every connected downstream client so a
	// sampling/elicitation request an upstream backend issues mid-call can
	// be forwarded back to whichever client originated the tool call
	// (pkg/vmcp/session.Locator). It must be constructed before the client
	// pool below, since each backend's UpstreamDispatcher resolves
	// requests against it, and shared again with server.New afterward.
	sharedSessions := server.NewClientSessions()
	forwardTimeout := cfg.Operational.RequestTimeout.AsDuration()
	forwarder := session.NewForwarder(sharedSessions, forwardTimeout)

	dispatchFor := func(_ vmcp.Backend) session.InboundDispatcher {
		return &session.UpstreamDispatcher{Forwarder: forwarder}
	}

	thresholds := client.PingThresholds{
		PingInterval: cfg.Operational.HealthCheckInterval.AsDuration(),
	}
	pool := client.NewPool(client.NewDefaultDialer(), dispatchFor, thresholds, 64, nil)
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Errorf("closing backend pool: %v", err)
		}
	}()

	backends := make([]vmcp.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, b.ToBackend())
	}

	mgr, err := registry.NewManager(cfg.Registry.StaticToolsPath, backends, pool, registry.OSEnv)
	if err != nil {
		return fmt.Errorf("creating capability registry: %w", err)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Errorf("closing capability registry: %v", err)
		}
	}()
	for _, b := range backends {
		pool.Add(ctx, b)
	}
	if cfg.Registry.WatchReload {
		go func() {
			if err := mgr.WatchStatic(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("static tool directory watcher stopped: %v", err)
			}
		}()
	}
	if err := mgr.LoadAll(ctx); err != nil {
		return fmt.Errorf("loading capability catalog: %w", err)
	}
	logger.Infof("capability catalog loaded: %d tools", len(mgr.Registry().Current().AdvertisedTools(false)))

	routerOpts := []router.Option{
		router.WithSubprocess(router.NewSubprocessAdapter()),
		router.WithHTTP(router.NewHTTPAdapter(http.DefaultClient)),
		router.WithGRPC(router.NewGRPCAdapter()),
		router.WithGraphQL(router.NewGraphQLAdapter(http.DefaultClient)),
		router.WithWebSocket(router.NewWebSocketAdapter(cfg.Operational.HealthCheckInterval.AsDuration())),
		router.WithSSE(router.NewSSEAdapter(http.DefaultClient)),
		router.WithDatabase(router.NewDatabaseAdapter(envDSNResolver)),
	}

	embedder := embedding.NewHashEmbedder(0)
	store, err := embedding.OpenSQLiteStore(cfg.Embedding.DBPath)
	if err != nil {
		return fmt.Errorf("opening tool embedding store: %w", err)
	}
	embedMgr, err := embedding.NewManager(store, embedder, nil)
	if err != nil {
		return fmt.Errorf("creating embedding manager: %w", err)
	}

	discoveryOpts := []discovery.Option{
		discovery.WithWeights(discovery.Weights{
			Semantic: cfg.Discovery.SemanticWeight,
			Rule:     cfg.Discovery.RuleWeight,
			LLM:      cfg.Discovery.LLMWeight,
		}),
		discovery.WithConfidenceThreshold(cfg.Discovery.ConfidenceThreshold),
		discovery.WithSemanticRanker(discovery.NewSemanticScorer(embedMgr, embedder)),
	}

	var mapper *discovery.ArgumentMapper
	if cfg.Discovery.LLMProvider != "" {
		if cfg.Discovery.LLMBaseURL == "" {
			return fmt.Errorf("discovery.llm_provider %q configured without discovery.llm_base_url", cfg.Discovery.LLMProvider)
		}
		provider := llmclient.NewHTTPProvider(http.DefaultClient,
			map[string]string{cfg.Discovery.LLMProvider: cfg.Discovery.LLMBaseURL},
			map[string]string{cfg.Discovery.LLMProvider: cfg.Discovery.LLMAPIKey()},
		)
		discoveryOpts = append(discoveryOpts, discovery.WithLLMRanker(discovery.NewLLMScorer(
			provider, cfg.Discovery.LLMProvider, cfg.Discovery.LLMModel,
			cfg.Discovery.LLMRatePerSecond, cfg.Discovery.LLMTokenBudget,
		)))
		mapper = discovery.NewArgumentMapper(provider, cfg.Discovery.LLMProvider, cfg.Discovery.LLMModel)
		routerOpts = append(routerOpts, router.WithLLM(router.NewLLMAdapter(
			provider, cfg.Discovery.LLMRatePerSecond, int(cfg.Discovery.LLMTokenBudget),
		)))
	}

	rtr := router.New(mgr.Registry(), pool, routerOpts...)
	engine := discovery.New(mgr.Registry(), discoveryOpts...)
	if n, err := engine.ReconcileEmbeddings(ctx, embedMgr); err != nil {
		logger.Errorf("reconciling tool embeddings: %v", err)
	} else if n > 0 {
		logger.Infof("reconciled %d tool embeddings", n)
	}

	var providers *telemetry.Providers
	if cfg.Telemetry.TracingEnabled || cfg.Telemetry.MetricsEnabled {
		providers, err = telemetry.NewProviders(telemetry.Config{
			ServiceName:    cfg.Name,
			ServiceVersion: getVersion(),
			TracingEnabled: cfg.Telemetry.TracingEnabled,
			SamplingRate:   cfg.Telemetry.SamplingRate,
			MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		})
		if err != nil {
			return fmt.Errorf("creating telemetry providers: %w", err)
		}
		defer func() {
			if err := providers.Shutdown(ctx); err != nil {
				logger.Errorf("shutting down telemetry providers: %v", err)
			}
		}()
	}

	srv, err := server.New(server.Config{
		Name:               cfg.Name,
		Version:            getVersion(),
		ListenHTTP:         cfg.Listen.HTTP,
		ListenWebSocket:    cfg.Listen.WebSocket,
		ListenSSE:          cfg.Listen.SSE,
		RequestTimeout:     cfg.Operational.RequestTimeout.AsDuration(),
		ForwardTimeout:     forwardTimeout,
		WebSocketPingEvery: cfg.Operational.HealthCheckInterval.AsDuration(),
		Telemetry:          providers,
	}, server.Deps{
		Registry:        mgr,
		Pool:            pool,
		Router:          rtr,
		DiscoveryEngine: engine,
		ArgumentMapper:  mapper,
		Sessions:        sharedSessions,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("starting magictunnel proxy")
	return srv.Start(ctx)
}

// envDSNResolver resolves a tool's dsn_ref against an environment variable
// of the same name, formatted "driver|dsn" (e.g. "sqlite|/var/lib/tools.db")
// so connection strings never appear in a tool definition file.
func envDSNResolver(ref string) (driver, dsn string, err error) {
	val, ok := os.LookupEnv(ref)
	if !ok {
		return "", "", fmt.Errorf("dsn_ref %q: environment variable not set", ref)
	}
	driver, dsn, ok = strings.Cut(val, "|")
	if !ok {
		return "", "", fmt.Errorf("dsn_ref %q: expected \"driver|dsn\" format", ref)
	}
	return driver, dsn, nil
}
