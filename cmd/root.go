// Package cmd provides the CLI commands for refspan.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// Logger defines the logging interface used by the command.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	// LockDir is the directory path used as the mutual-exclusion token.
	LockDir string

	// SerialFile is the path of the shared push serial counter file.
	SerialFile string

	// LockRetryInterval and LockRetryTimeout select the lock acquisition
	// policy; a zero interval means one non-blocking attempt.
	LockRetryInterval time.Duration
	LockRetryTimeout  time.Duration

	// ExcludeTagTips includes tag tips in the already-known exclusion set.
	ExcludeTagTips bool

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// Dependencies holds all injectable dependencies for the command.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// GraphStoreFactory creates a GraphStore for the given repository path.
	GraphStoreFactory func(path string, log Logger) (domain.GraphStore, error)

	// LockerFactory creates the Locker guarding the push serial.
	LockerFactory func(cfg *AppConfig, log Logger) domain.Locker

	// SerialFactory creates the SerialCounter guarded by the given locker.
	SerialFactory func(cfg *AppConfig, locker domain.Locker, log Logger) domain.SerialCounter

	// ResolverFactory creates a Resolver over the given graph store.
	ResolverFactory func(graph domain.GraphStore, log Logger) domain.Resolver

	// DescriberFactory creates a Describer over the given graph store.
	DescriberFactory func(graph domain.GraphStore, log Logger) domain.Describer

	// OutputWriterFactory creates an OutputWriter for the given destination.
	OutputWriterFactory func(out io.Writer) domain.OutputWriter

	// Stdin supplies post-receive batch lines when no args are given.
	Stdin io.Reader

	// Stdout is the writer for standard output (resolved revisions).
	Stdout io.Writer

	// Stderr is the writer for standard error (warnings/errors).
	Stderr io.Writer
}

// Output formats.
const (
	FormatCommits = "commits"
	FormatRange   = "range"
)

// Command-line flags.
var (
	repoPath   string
	format     string
	describe   bool
	bumpSerial bool
	verbose    bool
)

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for refspan.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "refspan [<refname> <oldrev> <newrev>]",
		Short: "Resolve the commits introduced by a ref update in a push hook",
		Long: `refspan computes, for one or more ref updates, exactly the set of commits
introduced by each update that is not already reachable from any other
ref's current tip. It is meant to run inside server-side git hooks.

Invoked with three arguments it processes a single update-hook style
event. Invoked with no arguments it reads post-receive lines
("<oldrev> <newrev> <refname>") from stdin and processes each one; a
failure on one ref does not abort the others.

The zero hash as oldrev denotes ref creation; as newrev, ref deletion.
Deletions resolve to an empty set.

Examples:
  # update hook: single event from arguments
  refspan refs/heads/main 5cc2f0a8... 8d3b0e11...

  # post-receive hook: batch from stdin
  refspan < /dev/stdin

  # emit the signed revision range instead of the resolved commits
  refspan --format range refs/heads/main 5cc2f0a8... 8d3b0e11...

  # bump the shared push serial under the lock
  refspan --serial refs/heads/main 5cc2f0a8... 8d3b0e11...`,
		Args:         cobra.MatchAll(cobra.MaximumNArgs(3), exactlyZeroOrThreeArgs),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, args, deps)
		},
	}

	rootCmd.Flags().StringVarP(&repoPath, "path", "C", ".",
		"Path of the repository the hook runs in")
	rootCmd.Flags().StringVarP(&format, "format", "f", FormatCommits,
		"Output format: commits (resolved new commit ids) or range (signed tokens)")
	rootCmd.Flags().BoolVar(&describe, "describe", false,
		"Log the nearest-tag description of each update's operative revision")
	rootCmd.Flags().BoolVar(&bumpSerial, "serial", false,
		"Increment the shared push serial under the directory lock")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	return rootCmd
}

// exactlyZeroOrThreeArgs accepts the argument-less batch form and the
// three-argument update-hook form, nothing in between.
func exactlyZeroOrThreeArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 3 {
		return fmt.Errorf("expected no arguments (batch mode) or <refname> <oldrev> <newrev>, got %d", len(args))
	}
	return nil
}

// runHook executes the range resolution logic with injected dependencies.
func runHook(cmd *cobra.Command, args []string, deps *Dependencies) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	if format != FormatCommits && format != FormatRange {
		return fmt.Errorf("unknown format: %s", format)
	}

	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return fmt.Errorf("configuration error: %w", err)
	}

	events, err := collectEvents(args, deps.Stdin)
	if err != nil {
		log.Error(ctx, "failed to read update events", err, nil)
		return err
	}
	if len(events) == 0 {
		log.Warn(ctx, "no update events supplied", nil)
		return nil
	}

	log.Info(ctx, "starting refspan", map[string]interface{}{
		"path":    repoPath,
		"events":  len(events),
		"format":  format,
		"verbose": verbose,
	})

	graph, err := deps.GraphStoreFactory(repoPath, log)
	if err != nil {
		log.Error(ctx, "failed to open git repository", err, map[string]interface{}{
			"path": repoPath,
		})
		if errors.Is(err, domain.ErrRepositoryNotFound) {
			return fmt.Errorf("not a git repository: %s", repoPath)
		}
		return err
	}
	defer func() {
		if closeErr := graph.Close(); closeErr != nil {
			log.Warn(ctx, "failed to close git repository", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	resolver := deps.ResolverFactory(graph, log)
	describer := deps.DescriberFactory(graph, log)
	writer := deps.OutputWriterFactory(deps.Stdout)

	failed := 0
	for _, event := range events {
		if err := processEvent(ctx, event, cfg, resolver, describer, writer, log); err != nil {
			// Per-ref isolation: report and carry on with the rest of the
			// batch.
			failed++
			log.Error(ctx, "failed to process ref update", err, map[string]interface{}{
				"ref": event.RefName,
				"old": string(event.OldID),
				"new": string(event.NewID),
			})
			writeWarningf(stderr, "refspan: %s: %v\n", event.RefName, err)
		}
	}

	if bumpSerial {
		if err := advanceSerial(ctx, cfg, deps, log); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d ref updates failed", failed, len(events))
	}
	return nil
}

// processEvent resolves one update and writes its output.
func processEvent(
	ctx context.Context,
	event domain.UpdateEvent,
	cfg *AppConfig,
	resolver domain.Resolver,
	describer domain.Describer,
	writer domain.OutputWriter,
	log Logger,
) error {
	result, err := resolver.Resolve(ctx, domain.ResolveInput{
		Event:          event,
		ExcludeTagTips: cfg.ExcludeTagTips,
	})
	if err != nil {
		return err
	}

	if describe {
		label := describer.Describe(ctx, result.OperativeID, domain.DescribeOptions{
			Lightweight: true,
		})
		log.Info(ctx, "operative revision described", map[string]interface{}{
			"ref":        event.RefName,
			"revision":   string(result.OperativeID),
			"descriptor": label,
		})
	}

	if format == FormatRange {
		if err := writer.WriteRange(result.Range); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	} else {
		if err := writer.WriteCommits(result.Commits); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}

	log.Info(ctx, "ref update resolved", map[string]interface{}{
		"ref":         event.RefName,
		"kind":        result.Kind.String(),
		"type":        string(result.OperativeType),
		"new_commits": len(result.Commits),
	})
	return nil
}

// advanceSerial bumps the shared push counter under the directory lock.
func advanceSerial(ctx context.Context, cfg *AppConfig, deps *Dependencies, log Logger) error {
	locker := deps.LockerFactory(cfg, log)
	counter := deps.SerialFactory(cfg, locker, log)

	serial, err := counter.Next(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			return fmt.Errorf("another hook invocation holds the lock: %w", err)
		}
		return fmt.Errorf("serial error: %w", err)
	}

	log.Info(ctx, "push serial advanced", map[string]interface{}{
		"serial": serial,
	})
	return nil
}

// collectEvents builds the event list from argv (update-hook form) or from
// post-receive stdin lines ("<oldrev> <newrev> <refname>").
func collectEvents(args []string, stdin io.Reader) ([]domain.UpdateEvent, error) {
	if len(args) == 3 {
		return []domain.UpdateEvent{{
			RefName: args[0],
			OldID:   domain.CommitID(args[1]),
			NewID:   domain.CommitID(args[2]),
		}}, nil
	}

	if stdin == nil {
		stdin = os.Stdin
	}

	var events []domain.UpdateEvent
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed post-receive line: %q", line)
		}
		events = append(events, domain.UpdateEvent{
			OldID:   domain.CommitID(fields[0]),
			NewID:   domain.CommitID(fields[1]),
			RefName: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}

	return events, nil
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		// Intentionally ignored: no recovery action for failed stderr writes
		return
	}
}
