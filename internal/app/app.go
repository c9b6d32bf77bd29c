package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"capi-relay/internal/adapters/appconfig"
	"capi-relay/internal/adapters/graph"
	"capi-relay/internal/config"
	"capi-relay/internal/gatekeeper"
	"capi-relay/internal/handler"
	"capi-relay/internal/logging"
	"capi-relay/internal/normalizer"
	"capi-relay/internal/observability"
	"capi-relay/internal/ports"
	"capi-relay/internal/service"
)

// App is the main application container.
type App struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	metrics *observability.Metrics
	api     *handler.APIHandler
	http    *handler.HTTPHandler
}

// Options configures the App. Only Config and Logger are required.
type Options struct {
	Config       *config.AppConfig
	Logger       *slog.Logger
	Registerer   prometheus.Registerer // defaults to a private registry
	PolicyLoader ports.PolicyLoader    // defaults to the AppConfig agent when a profile is set
	Secrets      ports.SecretsProvider // defaults to Secrets Manager when a secret name is set
	Transport    http.RoundTripper     // outbound transport for the Conversions API
}

// New resolves the normalizer policy and upstream credentials, then wires
// the request pipeline. Missing credentials do not fail start-up; each
// tracking request is answered with a configuration error instead.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	logger := opts.Logger

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := observability.NewMetrics(reg)

	policy, err := loadPolicy(ctx, cfg, opts.PolicyLoader, logger)
	if err != nil {
		return nil, err
	}

	compiled, err := normalizer.PolicyFromConfig(policy)
	if err != nil {
		return nil, fmt.Errorf("compile normalizer policy: %w", err)
	}

	graphCfg := resolveCredentials(ctx, cfg.Graph, opts.Secrets, logger)

	var sender ports.EventSender
	if graphCfg.Configured() {
		sender = graph.NewClient(graph.Config{
			APIEndpoint:   graphCfg.APIEndpoint,
			APIVersion:    graphCfg.APIVersion,
			PixelID:       graphCfg.PixelID,
			AccessToken:   graphCfg.AccessToken,
			TestEventCode: graphCfg.TestEventCode,
			Timeout:       graphCfg.Timeout,
			Transport:     opts.Transport,
		})
	} else {
		logger.Warn("conversions api credentials missing, tracking requests will fail",
			"pixel_id_set", graphCfg.PixelID != "",
			"access_token_set", graphCfg.AccessToken != "")
	}

	gk := gatekeeper.New(cfg.CORS.AllowedOrigins, cfg.CORS.MaxAge, logging.WithComponent(logger, "gatekeeper"))
	norm := normalizer.New(compiled, normalizer.WithLogger(logging.WithComponent(logger, "normalizer")))
	tracker := service.NewTracker(norm, sender, metrics, logging.WithComponent(logger, "tracker"))
	api := handler.NewAPIHandler(gk, tracker, metrics, logging.WithComponent(logger, "api"))

	logger.Info("relay configured",
		"allowed_origins", len(cfg.CORS.AllowedOrigins),
		"graph_api_version", graphCfg.APIVersion,
		"test_event_code_set", graphCfg.TestEventCode != "",
		"lookback", compiled.Lookback,
		"commerce_defaults", len(compiled.CommerceDefaults))

	return &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		api:     api,
		http:    handler.NewHTTPHandler(api, cfg.Server.MaxBodyBytes),
	}, nil
}

// APIHandler returns the API Gateway handler.
func (a *App) APIHandler() *handler.APIHandler {
	return a.api
}

// HTTPHandler returns the net/http adapter of the same pipeline.
func (a *App) HTTPHandler() http.Handler {
	return a.http
}

// loadPolicy reads the policy file, then the AppConfig profile, and falls
// back to the built-in defaults.
func loadPolicy(ctx context.Context, cfg *config.AppConfig, loader ports.PolicyLoader, logger *slog.Logger) (*config.Policy, error) {
	switch {
	case cfg.PolicyFile != "":
		p, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded normalizer policy from file", "path", cfg.PolicyFile)
		return p, nil

	case cfg.AppConfig.PolicyProfile != "":
		if loader == nil {
			loader = appconfig.NewLoader(cfg.AppConfig, logging.WithComponent(logger, "config_loader"))
		}
		p, err := loader.LoadPolicy(ctx, cfg.AppConfig.PolicyProfile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded normalizer policy from appconfig", "profile", cfg.AppConfig.PolicyProfile)
		return p, nil

	default:
		return config.DefaultPolicy(), nil
	}
}

// resolveCredentials fills credentials absent from the environment from
// Secrets Manager. Failures are logged and leave the config unconfigured.
func resolveCredentials(ctx context.Context, g config.GraphConfig, secrets ports.SecretsProvider, logger *slog.Logger) config.GraphConfig {
	if g.Configured() || g.SecretName == "" {
		return g
	}

	if secrets == nil {
		client, err := config.NewSecretsManagerClient(ctx)
		if err != nil {
			logger.Error("failed to create secrets manager client", "error", err)
			return g
		}
		secrets = client
	}

	secret, err := secrets.GetGraphSecret(ctx, g.SecretName)
	if err != nil {
		logger.Error("failed to load conversions api secret", "secret_name", g.SecretName, "error", err)
		return g
	}

	g.ApplySecret(secret)
	logger.Info("loaded conversions api credentials from secrets manager", "secret_name", g.SecretName)
	return g
}
