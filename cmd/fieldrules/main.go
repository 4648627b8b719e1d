// Package main is the entry point for the fieldrules server and CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/fieldrules/pkg/api"
	grpcapi "github.com/lemonberrylabs/fieldrules/pkg/api/grpc"
	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
	"github.com/lemonberrylabs/fieldrules/pkg/logging"
	"github.com/lemonberrylabs/fieldrules/pkg/metrics"
	"github.com/lemonberrylabs/fieldrules/pkg/retention"
	"github.com/lemonberrylabs/fieldrules/pkg/store"
	"github.com/lemonberrylabs/fieldrules/pkg/store/sqlite"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errNotSatisfied makes check exit with status 1 without printing an error.
var errNotSatisfied = errors.New("value does not satisfy constraint")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNotSatisfied) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fieldrules",
		Short:         "Numeric field constraint validator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("fieldrules version {{.Version}}\n")

	root.AddCommand(newServeCmd(), newCheckCmd(), newCompileCmd(), newBenchCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST and gRPC servers",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	cmd.Flags().String("env-file", ".env", "Env file read before the environment; missing files are ignored")
	cmd.Flags().Int("port", 8787, "HTTP server port (env PORT)")
	cmd.Flags().Int("grpc-port", 8788, "gRPC server port (env GRPC_PORT)")
	cmd.Flags().String("host", "0.0.0.0", "Bind address (env HOST)")
	cmd.Flags().String("rules-dir", "", "Directory of rule YAML/JSON files to load and watch (env RULES_DIR)")
	cmd.Flags().String("data-file", "", "SQLite file persisting rules and checks; in-memory when empty (env DATA_FILE)")
	cmd.Flags().Duration("check-retention", 0, "Prune checks older than this; 0 keeps them forever (env CHECK_RETENTION)")
	cmd.Flags().String("prune-schedule", retention.DefaultSchedule, "Cron schedule for check pruning (env PRUNE_SCHEDULE)")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	cmd.Flags().String("log-format", "console", "Log format: console or json (env LOG_FORMAT)")
	cmd.Flags().String("log-file", "", "Also write logs to this file, rotated at LOG_MAX_SIZE_MB (env LOG_FILE)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check VALUE CONSTRAINT",
		Short: "Check a value against a constraint",
		Example: `  fieldrules check 1000 ">=1000 & <=9999"
  fieldrules check --explain 5 "1 < & < 10"`,
		Args: cobra.ExactArgs(2),
		RunE: check,
	}
	cmd.Flags().Bool("explain", false, "Print the bound expression or the constraint error")
	return cmd
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile CONSTRAINT",
		Short: "Print the normalized form of a constraint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := constraint.Compile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prog.String())
			return nil
		},
	}
}

func check(cmd *cobra.Command, args []string) error {
	explain, _ := cmd.Flags().GetBool("explain")
	res := constraint.Explain(args[0], args[1])

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Valid)
	if explain {
		printExplanation(out, res)
	}
	if !res.Valid {
		return errNotSatisfied
	}
	return nil
}

func printExplanation(w io.Writer, res constraint.Result) {
	if res.Expression != "" {
		fmt.Fprintf(w, "expression: %s\n", res.Expression)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "error: %v\n", res.Err)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServer(ctx, cfg)
}

// runServer serves REST and gRPC until ctx is done or either server fails.
// Background work is stopped before the store is closed.
func runServer(ctx context.Context, cfg serveConfig) error {
	log, err := logging.New(cfg.logging())
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)

	addr := cfg.addr()
	grpcAddr := cfg.grpcAddr()
	rulesDir := cfg.RulesDir

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, closeStore, err := openStore(ctx, cfg.DataFile)
	if err != nil {
		return err
	}
	defer closeStore()
	if cfg.DataFile != "" {
		log.Info("Opened data file", zap.String("path", cfg.DataFile), zap.Int("rules", len(s.ListRules())))
	}

	m := metrics.New()
	server := api.New(s, log.Named("api"), m)

	pruner := retention.NewScheduler(s, cfg.retention(), log.Named("retention"), m)
	if err := pruner.Start(ctx); err != nil {
		return err
	}
	defer pruner.Stop()

	var watchers sync.WaitGroup
	if rulesDir != "" {
		if err := server.LoadDir(rulesDir); err != nil {
			log.Warn("Failed to load rules directory", zap.String("dir", rulesDir), zap.Error(err))
		} else {
			watchers.Add(1)
			go func() {
				defer watchers.Done()
				if err := server.WatchDir(ctx, rulesDir); err != nil {
					log.Error("Rules directory watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	errCh := make(chan error, 2)
	grpcServer := grpcapi.New(s, log.Named("grpc"), m)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(grpcAddr); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		log.Info("fieldrules listening", zap.String("addr", addr), zap.String("version", version))
		if err := server.Listen(addr); err != nil {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case serveErr = <-errCh:
		log.Error("Server failed, shutting down", zap.Error(serveErr))
	}

	cancel()
	grpcServer.GracefulStop()
	if err := server.Shutdown(); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
	}
	// A reload in progress may still write to the store.
	watchers.Wait()
	return serveErr
}

// openStore returns an in-memory store, or one persisted to path when set.
func openStore(ctx context.Context, path string) (*store.Store, func(), error) {
	if path == "" {
		return store.New(), func() {}, nil
	}
	b, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(ctx, b)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return s, func() { b.Close() }, nil
}
