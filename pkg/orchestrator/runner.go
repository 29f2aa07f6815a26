package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/config"
	"github.com/core-tools/hsu-orchestrator/pkg/control"
	"github.com/core-tools/hsu-orchestrator/pkg/datadir"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type RunOptions struct {
	ConfigFile  string
	RunDuration time.Duration // zero runs until a signal arrives
	Port        int           // overrides server.port when positive
	LogLevel    string        // overrides logging.level when set
}

// Run loads the configuration, serves the HTTP API and runs the orchestrator
// until a termination signal or the run duration elapses.
func Run(options RunOptions) error {
	cfg, err := LoadAndValidate(options.ConfigFile)
	if err != nil {
		return err
	}
	if options.Port > 0 {
		cfg.Server.Port = options.Port
	}
	if options.LogLevel != "" {
		cfg.Logging.Level = options.LogLevel
	}

	resolver, err := resolvePaths(cfg)
	if err != nil {
		return err
	}

	zapLogger, err := logging.NewZapLogger(logging.ZapOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return errors.NewInternalError("failed to create logger", err)
	}
	defer zapLogger.Sync()

	logger := logging.ForModule(zapLogger, "orchestrator")
	logger.Infof("Orchestrator runner starting...")
	logger.Infof("Using CONFIGURATION FILE: %s", options.ConfigFile)
	logger.Infof("Using DATA DIRECTORY: %s, LOG DIRECTORY: %s", resolver.DataDirectory(), resolver.LogDirectory())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if options.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", options.RunDuration)
		ctx, cancel = context.WithTimeout(ctx, options.RunDuration)
		defer cancel()
	}

	local, err := thoughtstore.Open(ctx, cfg.Stores.Local, cfg.Stores.CallTimeout, logging.ForModule(zapLogger, "store.local"))
	if err != nil {
		return errors.NewStoreUnavailableError("failed to open local thought store", err)
	}
	defer local.Close()

	components := Components{
		Local: local.Store,
	}

	if cfg.Stores.Remote.Type != "" && cfg.Sync.IsEnabled() {
		remote, err := thoughtstore.Open(ctx, cfg.Stores.Remote, cfg.Stores.CallTimeout, logging.ForModule(zapLogger, "store.remote"))
		if err != nil {
			return errors.NewStoreUnavailableError("failed to open remote thought store", err)
		}
		defer remote.Close()
		components.Remote = remote.Store
	} else {
		logger.Infof("No remote thought store, cross-network sync is off")
	}

	signaler, closeSignaler, err := newSignaler(cfg.Signals, logging.ForModule(zapLogger, "signals"))
	if err != nil {
		return err
	}
	defer closeSignaler()
	components.Signaler = signaler

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	components.Registerer = registry

	orchestrator, err := NewOrchestrator(cfg, components, logger)
	if err != nil {
		return errors.NewInternalError("failed to create orchestrator", err)
	}

	serverLogger := logging.ForModule(zapLogger, "control")
	server, err := control.NewServer(control.ServerOptions{Port: cfg.Server.Port}, serverLogger)
	if err != nil {
		return errors.NewInternalError("failed to create server", err)
	}
	control.RegisterHTTPServerHandler(server.Router(), orchestrator, serverLogger)
	control.RegisterThoughtStoreHandler(server.Router(), orchestrator.LocalStore(), serverLogger)
	control.RegisterMetricsHandler(server.Router(), registry)

	if err := server.Start(); err != nil {
		return err
	}

	orchestrator.Start(ctx)

	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := config.Watch(watchCtx, options.ConfigFile, logging.ForModule(zapLogger, "config"), orchestrator.ApplyConfig)
		if err != nil {
			logger.Warnf("Configuration hot reload unavailable, error: %v", err)
		}
	}()

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	logger.Infof("Orchestrator is ready, port: %d, services: %d", cfg.Server.Port, orchestrator.Registry().Count())

	select {
	case receivedSignal := <-sig:
		logger.Infof("Orchestrator runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Orchestrator runner timed out")
	}

	stopWatch()
	wg.Wait()

	// Background context so shutdown is not cut short by the expired run context.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ForceShutdownTimeout)
	defer cancelShutdown()

	server.Shutdown(shutdownCtx)
	orchestrator.Stop(shutdownCtx)

	logger.Infof("Orchestrator runner stopped")
	return nil
}

// LoadAndValidate reads a configuration file and checks it without starting
// anything.
func LoadAndValidate(configFile string) (*config.Config, error) {
	cfg, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return cfg, nil
}

// resolvePaths moves bare sqlite and log file names into the data and log
// directories of the configured service context and creates those
// directories.
func resolvePaths(cfg *config.Config) (*datadir.Resolver, error) {
	serviceContext, err := datadir.ParseServiceContext(cfg.Server.ServiceContext)
	if err != nil {
		return nil, err
	}
	resolver := datadir.NewResolver(datadir.Config{
		BaseDirectory:  cfg.Server.DataDir,
		ServiceContext: serviceContext,
	}, logging.Nop())

	if cfg.Logging.File != "" {
		cfg.Logging.File = resolver.LogFile(cfg.Logging.File)
		if err := resolver.Prepare(cfg.Logging.File); err != nil {
			return nil, err
		}
	}

	stores := []struct {
		store    *config.StoreConfig
		fallback string
	}{
		{&cfg.Stores.Local, "thoughts.db"},
		{&cfg.Stores.Remote, "remote-thoughts.db"},
	}
	for _, entry := range stores {
		if entry.store.Type != config.StoreTypeSQLite {
			continue
		}
		if entry.store.DSN == "" {
			entry.store.DSN = entry.fallback
		}
		entry.store.DSN = resolver.DataFile(entry.store.DSN)
		if err := resolver.Prepare(entry.store.DSN); err != nil {
			return nil, err
		}
	}
	return resolver, nil
}

func newSignaler(cfg config.SignalsConfig, logger logging.Logger) (actions.Signaler, func(), error) {
	if cfg.Type != config.SignalerTypeNATS {
		return actions.NewLogSignaler(logger), func() {}, nil
	}
	signaler, err := actions.NewNATSSignaler(cfg.NATSURL, cfg.Subject, logger)
	if err != nil {
		return nil, nil, err
	}
	return signaler, signaler.Close, nil
}
