// Command flowhost hosts declarative flow applications.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/admin"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module/builtin"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowhost",
		Short:         "Host declarative flow applications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	setupFlags(root)
	root.AddCommand(newServeCommand(), newValidateCommand(), newVisualizeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [identity=path | path]...",
		Short: "Restore persisted applications, deploy the given ones and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, args)
		},
	}
}

func serve(ctx context.Context, cfg Config, args []string) (err error) {
	logger := cfg.newLogger(os.Stderr)

	reg, err := builtin.NewRegistry()
	if err != nil {
		return err
	}

	rtOpts := []flowgraph.RuntimeOption{
		flowgraph.WithLogger(logger),
		flowgraph.WithMetrics(cfg.Metrics),
		flowgraph.WithTracing(cfg.Tracing),
	}
	if cfg.OperationWorkers > 0 {
		rtOpts = append(rtOpts, flowgraph.WithOperationWorkers(cfg.OperationWorkers))
	}
	if cfg.CoordinationWorkers > 0 {
		rtOpts = append(rtOpts, flowgraph.WithCoordinationWorkers(cfg.CoordinationWorkers))
	}
	rt := flowgraph.NewRuntime(rtOpts...)
	defer rt.Close()

	opts := []app.Option{
		app.WithDataDir(cfg.DataDir),
		app.WithTmpDir(cfg.TmpDir),
		app.WithRegistry(reg),
		app.WithRuntime(rt),
		app.WithLogger(logger),
	}
	if cfg.StateStore == "sqlite" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return err
		}
		store, err := app.NewSQLiteStateStore(filepath.Join(cfg.DataDir, "flowhost.db"))
		if err != nil {
			return err
		}
		opts = append(opts, app.WithStateStore(store))
	}

	mgr, err := app.NewManager(opts...)
	if err != nil {
		return err
	}
	logger.Info("manager started", "data_dir", mgr.DataDir(), "tmp_dir", mgr.TmpDir(), "state_store", cfg.StateStore)
	defer func() {
		err = errors.Join(err, mgr.Close(context.WithoutCancel(ctx)))
	}()

	restored, err := mgr.Restore(ctx)
	if err != nil {
		return err
	}
	logger.Info("restored applications", "count", restored)

	for _, arg := range args {
		identity, path := splitDeployArg(arg)
		src, err := app.FileSource(path)
		if err != nil {
			return err
		}
		if _, err := mgr.Deploy(ctx, identity, src); err != nil {
			return err
		}
	}

	srv, err := admin.NewServer(mgr, admin.WithLogger(logger), admin.WithDotPath(cfg.DotPath))
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.ListenAndServe(ctx, cfg.HTTPAddr, cfg.ShutdownGrace)
}

// splitDeployArg parses "identity=path", defaulting the identity to the
// file name without its extension.
func splitDeployArg(arg string) (identity, path string) {
	if id, p, ok := strings.Cut(arg, "="); ok {
		return id, p
	}
	base := filepath.Base(arg)
	return strings.TrimSuffix(base, filepath.Ext(base)), arg
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate path...",
		Short: "Check application sources without deploying them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := builtin.NewRegistry()
			if err != nil {
				return err
			}
			var errs []error
			for _, path := range args {
				if _, err := configureFile(path, reg); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			return errors.Join(errs...)
		},
	}
}

func newVisualizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "visualize path flow",
		Short: "Print a flow as a Graphviz DOT graph",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := builtin.NewRegistry()
			if err != nil {
				return err
			}
			def, err := configureFile(args[0], reg)
			if err != nil {
				return err
			}
			vis := def.InitializerVisualizer
			if args[1] != module.InitializerFlow {
				var ok bool
				if vis, ok = def.Flows.Visualizer(args[1]); !ok {
					return fmt.Errorf("%w: %s", app.ErrFlowNotFound, args[1])
				}
			}
			if vis == nil {
				return fmt.Errorf("%s has no initializer", args[0])
			}
			return vis.WriteDOT(cmd.OutOrStdout())
		},
	}
}

func configureFile(path string, reg *module.Registry) (*module.Definition, error) {
	data, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return module.ConfigureSource(path, data, reg, module.WithBaseDir(filepath.Dir(abs)))
}
