package gateway

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/governor"
	"github.com/core-tools/hsu-governor/pkg/logging"
)

// Run loads the configuration, starts the governor with its configured
// target sessions, serves the gateway, and blocks until a signal arrives
// or the run duration elapses.
func Run(runDuration int, configFile string, logger logging.Logger) error {
	logger.Infof("Governor runner starting...")

	// Create context with run duration
	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithTimeout(ctx, duration)
		defer cancelRun()
	}

	logger.Infof("Using CONFIGURATION FILE: %s", configFile)

	// Load configuration
	config, err := governor.LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}

	// Validate configuration
	if err := governor.ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	logger.Infof("Configuration loaded successfully from %s", configFile)
	logger.Infof("Listen address: %s, Targets: %d", config.Governor.ListenAddress, len(config.Targets))

	// Create governor instance
	gov := governor.NewGovernor(governor.GovernorOptions{
		Defaults:       *config.Defaults,
		LedgerCapacity: config.Governor.LedgerCapacity,
	}, logger)

	gov.Start(ctx)

	// Create and start the gateway server
	server, err := NewServer(ctx, ServerOptions{
		ListenAddress: config.Governor.ListenAddress,
	}, gov, logger)
	if err != nil {
		gov.Stop(context.Background())
		return errors.NewInternalError("failed to create gateway server", err)
	}

	if err := server.Start(); err != nil {
		gov.Stop(context.Background())
		return errors.NewInternalError("failed to start gateway server", err)
	}

	logger.Infof("Enabling signal handling...")

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	logger.Infof("Governor is ready, starting configured sessions...")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		// Start sessions for configured targets; targets that fail (a
		// vanished PID, for one) do not block the rest
		ids, err := governor.StartSessionsFromConfig(ctx, gov, config)
		if err != nil {
			logger.Errorf("Some configured sessions failed to start: %v", err)
		}

		logger.Infof("Started %d sessions, governor is fully operational", len(ids))
	}()

	// Wait for graceful shutdown or timeout
	select {
	case receivedSignal := <-sig:
		logger.Infof("Governor runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Governor runner timed out")
	}

	logger.Infof("Waiting for session startup to finish...")

	wg.Wait()

	logger.Infof("Ready to stop governor...")

	// Reset context to background to enable graceful shutdown, bounded
	// by the configured force shutdown timeout
	shutdownCtx := context.Background()
	if config.Governor.ForceShutdownTimeout > 0 {
		var cancelShutdown context.CancelFunc
		shutdownCtx, cancelShutdown = context.WithTimeout(shutdownCtx, config.Governor.ForceShutdownTimeout)
		defer cancelShutdown()
	}

	server.Stop(shutdownCtx)
	gov.Stop(shutdownCtx)

	logger.Infof("Governor runner stopped")

	return nil
}
