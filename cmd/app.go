package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/aggregate"
	"github.com/teemow/calbridge/internal/config"
	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/provider"
	"github.com/teemow/calbridge/internal/provider/caldav"
	"github.com/teemow/calbridge/internal/provider/google"
	"github.com/teemow/calbridge/internal/provider/outlook"
)

// globalOptions holds the persistent flags shared by all commands.
type globalOptions struct {
	envFile     string
	logLevel    string
	logFormat   string
	user        string
	credentials string
}

var globals globalOptions

func addGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&globals.envFile, "env-file", config.DefaultEnvFile, "Optional file of KEY=value lines loaded into the environment")
	f.StringVar(&globals.logLevel, "log-level", "", "Log level: debug, info, warn, error. Overrides LOG_LEVEL.")
	f.StringVar(&globals.logFormat, "log-format", "", "Log format: text or json. Overrides LOG_FORMAT.")
	f.StringVarP(&globals.user, "user", "u", "", "User whose calendars are used. Can also use CALBRIDGE_USER env var.")
	f.StringVar(&globals.credentials, "credentials", "", "JSON file mapping backend names to the user's OAuth tokens. Can also use CALBRIDGE_CREDENTIALS env var.")
}

// app is the wiring shared by all commands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	instr  *instrumentation.Provider
	store  *credential.MemoryStore
	engine *aggregate.Engine
	user   string
}

// newApp loads the configuration and builds the engine. Logs go to the
// command's stderr so stdout stays machine readable.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(globals.envFile)
	if err != nil {
		return nil, err
	}
	if globals.logLevel != "" {
		cfg.LogLevel = globals.logLevel
	}
	if globals.logFormat != "" {
		cfg.LogFormat = globals.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	instr, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		_ = instr.Shutdown(ctx)
		return nil, err
	}

	store := credential.NewMemoryStore(credential.WithLogger(logger))
	engine := aggregate.New(registry, store,
		aggregate.WithProviderTimeout(cfg.ProviderTimeout),
		aggregate.WithLogger(logger),
		aggregate.WithMetrics(instr.Metrics()),
		aggregate.WithAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		instr:  instr,
		store:  store,
		engine: engine,
		user:   firstNonEmpty(globals.user, os.Getenv("CALBRIDGE_USER")),
	}, nil
}

// newRegistry registers the adapters in their fixed order: Google, Outlook, CalDAV.
func newRegistry(cfg config.Config, logger *slog.Logger) (*provider.Registry, error) {
	g, err := google.New(cfg.Google, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create google adapter: %w", err)
	}
	return provider.NewRegistry(
		g,
		outlook.New(cfg.Outlook, logger),
		caldav.New(cfg.CalDAV, logger),
	)
}

// loadCredentials reads the user's tokens into the store. It returns the
// number of backends the user is connected to.
func (a *app) loadCredentials() (int, error) {
	if a.user == "" {
		return 0, fmt.Errorf("no user given, use --user or CALBRIDGE_USER")
	}
	path := firstNonEmpty(globals.credentials, os.Getenv("CALBRIDGE_CREDENTIALS"))
	if path == "" {
		return 0, fmt.Errorf("no credentials file given, use --credentials or CALBRIDGE_CREDENTIALS")
	}

	creds, err := credential.LoadFile(path)
	if err != nil {
		return 0, err
	}
	credential.Sync(a.store, a.user, creds)

	a.logger.Debug("loaded credentials",
		logging.UserHash(a.user),
		logging.Count(len(creds)),
		slog.Int("cached", a.store.Len()))
	return len(creds), nil
}

// Close stops the credential janitor and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	a.store.Close()
	if err := a.instr.Shutdown(ctx); err != nil {
		a.logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
