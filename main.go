// Package main is the entry point for the refspan CLI application.
// refspan resolves, inside server-side git push hooks, the exact set of
// commits a ref update introduces that no other ref already made reachable.
package main

import (
	"io"
	"os"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/refspan/cmd"
	"github.com/MyCarrier-DevOps/refspan/internal/adapters/git"
	"github.com/MyCarrier-DevOps/refspan/internal/adapters/lock"
	logadapter "github.com/MyCarrier-DevOps/refspan/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/refspan/internal/adapters/output"
	"github.com/MyCarrier-DevOps/refspan/internal/adapters/serial"
	"github.com/MyCarrier-DevOps/refspan/internal/domain"
	"github.com/MyCarrier-DevOps/refspan/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/refspan/internal/usecases"
)

func main() {
	// Create a single shared logger instance for the application
	zapLog := logger.NewZapLoggerFromConfig()
	adapter := logadapter.NewZapAdapter(zapLog)

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return adapter
		},

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return appConfigFrom(cfg), nil
		},

		GraphStoreFactory: func(path string, _ cmd.Logger) (domain.GraphStore, error) {
			return git.NewGoGitStore(path, adapter)
		},

		LockerFactory: func(cfg *cmd.AppConfig, _ cmd.Logger) domain.Locker {
			return newLocker(cfg, adapter)
		},

		SerialFactory: func(cfg *cmd.AppConfig, locker domain.Locker, _ cmd.Logger) domain.SerialCounter {
			return serial.NewFileCounter(cfg.SerialFile, locker, adapter)
		},

		ResolverFactory: func(graph domain.GraphStore, _ cmd.Logger) domain.Resolver {
			return usecases.NewRangeResolver(graph, adapter)
		},

		DescriberFactory: func(graph domain.GraphStore, _ cmd.Logger) domain.Describer {
			return usecases.NewTagDescriber(graph, adapter)
		},

		OutputWriterFactory: func(out io.Writer) domain.OutputWriter {
			return output.NewWriterWithOutput(out)
		},

		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}

// appConfigFrom maps the loaded configuration onto the command's view of it.
func appConfigFrom(cfg *config.Config) *cmd.AppConfig {
	return &cmd.AppConfig{
		LockDir:           cfg.LockDir,
		SerialFile:        cfg.SerialFile,
		LockRetryInterval: cfg.LockRetryInterval,
		LockRetryTimeout:  cfg.LockRetryTimeout,
		ExcludeTagTips:    cfg.ExcludeTagTips,
		LogLevel:          cfg.LogLevel,
		LogAppName:        cfg.LogAppName,
	}
}

// newLocker builds the directory lock, blocking with retries only when an
// interval is configured.
func newLocker(cfg *cmd.AppConfig, log lock.Logger) domain.Locker {
	if cfg.LockRetryInterval > 0 {
		return lock.New(cfg.LockDir, log,
			lock.WithRetry(cfg.LockRetryInterval, cfg.LockRetryTimeout))
	}
	return lock.New(cfg.LockDir, log)
}
