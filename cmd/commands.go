package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"chequeo/internal/configuration"
	"chequeo/internal/score/rule"
	"chequeo/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath string
	fixture    string
	config     *configuration.AppConfig
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chequeo",
		Short:         "Executive assessment scoring and rule evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := configuration.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.fixture != "" {
				config.Store.Fixture = opts.fixture
			}
			prepareLogger(config.Logger.Level)
			opts.config = config
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "/etc/chequeo/config.yaml", "configuration file")
	root.PersistentFlags().StringVar(&opts.fixture, "fixture", "", "YAML fixture seeding the memory or sql store")

	root.AddCommand(newServeCmd(opts), newScoresCmd(opts), newRulesCmd(opts))
	return root
}

// withApp builds the application for one command and releases it after.
func withApp(cmd *cobra.Command, opts *options, run func(ctx context.Context, a *app) (any, error)) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.config)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Unable to release resources", "error", err)
		}
	}()

	result, err := run(ctx, a)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				return nil, serve(ctx, a)
			})
		},
	}
}

// serve runs the HTTP server and the history sweeper until ctx is done or
// the server fails.
func serve(ctx context.Context, a *app) error {
	srv := server.NewServer(a.config.Server.Address, a.scores, a.rules, a.registry)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.runs.Serve()
		return nil
	})
	g.Go(func() error {
		slog.Info("Server listening " + a.config.Server.Address)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.runs.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown", "error", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	})

	return g.Wait()
}

func newScoresCmd(opts *options) *cobra.Command {
	scores := &cobra.Command{
		Use:   "scores",
		Short: "Compute, summarize and clear capability/dimension scores",
	}

	scores.AddCommand(
		&cobra.Command{
			Use:   "compute <evaluation> [<capability> <dimension>]",
			Short: "Compute every active pair, or a single pair",
			Args: func(cmd *cobra.Command, args []string) error {
				if len(args) != 1 && len(args) != 3 {
					return fmt.Errorf("expected 1 or 3 arguments, got %d", len(args))
				}
				return nil
			},
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
					if len(ids) == 3 {
						return a.scores.ComputeScore(ctx, ids[0], ids[1], ids[2])
					}
					return a.scores.ComputeAll(ctx, ids[0])
				})
			},
		},
		evaluationCmd(opts, "summary", "Roll scores up per capability", func(ctx context.Context, a *app, id int64) (any, error) {
			return a.scores.Summary(ctx, id)
		}),
		evaluationCmd(opts, "clear", "Delete the scores of an evaluation", func(ctx context.Context, a *app, id int64) (any, error) {
			return a.scores.Clear(ctx, id)
		}),
	)
	return scores
}

func newRulesCmd(opts *options) *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Run rule bases and inspect their verdicts",
	}

	var version int64
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a YAML rule base into a methodology version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version <= 0 {
				return errors.New("--version must be a positive id")
			}
			base, err := rule.LoadBase(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				return base.Import(ctx, a.repo, version)
			})
		},
	}
	importCmd.Flags().Int64Var(&version, "version", 0, "methodology version id")

	rules.AddCommand(
		evaluationCmd(opts, "run", "Evaluate the active rules of an evaluation", func(ctx context.Context, a *app, id int64) (any, error) {
			return a.rules.Run(ctx, id)
		}),
		evaluationCmd(opts, "results", "List stored verdicts", func(ctx context.Context, a *app, id int64) (any, error) {
			return a.rules.Results(ctx, id)
		}),
		evaluationCmd(opts, "insights", "List satisfied rules", func(ctx context.Context, a *app, id int64) (any, error) {
			return a.rules.Insights(ctx, id)
		}),
		evaluationCmd(opts, "clear", "Delete stored verdicts", func(ctx context.Context, a *app, id int64) (any, error) {
			return a.rules.Clear(ctx, id)
		}),
		importCmd,
	)
	return rules
}

// evaluationCmd builds a subcommand taking a single evaluation id.
func evaluationCmd(opts *options, use, short string, run func(ctx context.Context, a *app, id int64) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <evaluation>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				return run(ctx, a, ids[0])
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id '%s'", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
