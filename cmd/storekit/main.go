package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/storekit/storekit/internal/config"
	"github.com/storekit/storekit/internal/logging"
	"github.com/storekit/storekit/internal/metrics"
	"github.com/storekit/storekit/internal/server"
	"github.com/storekit/storekit/internal/storage"
	"github.com/storekit/storekit/internal/storage/delegate"
	"github.com/storekit/storekit/internal/storage/registry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storekit",
		Short: "storekit - hierarchical key-value storage",
		Long: `storekit stores values under hierarchical keys on the filesystem, an
embedded ordered KV engine, a local store or an S3-compatible bucket.

Keys are written in their delimited form, components separated by "/".
Integer components use the fixed-width form, e.g. users/0000000000000007.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, text)")
	flags.StringP("module", "m", "filesystem", "Default storage module")
	flags.String("primary", "fs", "Primary side of the kvfs module (fs, kv)")
	flags.Bool("sandboxed", false, "Report filesystem keys as never writable")
	flags.String("fs-root", ".store", "Filesystem module root")
	flags.String("kv-engine", config.EnginePebble, "KV engine (pebble, badger, bbolt, memory)")
	flags.String("kv-path", ".store.kv", "KV engine path")

	rootCmd.AddCommand(
		newServeCmd(),
		newGetCmd(),
		newSetCmd(),
		newRemoveCmd(),
		newListCmd(),
		newCopyCmd(),
		newMoveCmd(),
		newWritableCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
	cmd.Flags().StringP("listen", "l", ":8080", "Listen address")
	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := logrus.StandardLogger()

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("Starting storekit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	facade, err := openFacade(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metricsManager := metrics.NewManager("")
	store := metrics.Instrument[any](metricsManager, "facade", logging.Extend[any](facade, logger))
	srv := server.New(cfg, store, metricsManager, logger)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("storekit stopped")
	return nil
}

// openFacade builds the routing facade: prefix routes from cfg, and the
// default module resolved lazily from cfg.Module.
func openFacade(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*delegate.Store[any], error) {
	reg := registry.New[any](logger)
	facade := delegate.New[any](reg.Resolver(cfg), logger)
	if err := reg.Configure(ctx, facade, cfg); err != nil {
		facade.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to configure storage: %w", err)
	}
	return facade, nil
}

// withStore loads configuration, opens the facade, runs fn and closes it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store storage.Module[any]) error) (err error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logrus.SetOutput(cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	facade, err := openFacade(ctx, cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := facade.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, facade)
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				key := storage.DecodePath(args[0])
				v, ok, err := store.GetItem(ctx, key)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no item at %s", key)
				}
				return printJSON(cmd, v)
			})
		},
	}
}

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY",
		Long:  "Store VALUE under KEY. VALUE is parsed as JSON and stored as a string when it is not valid JSON.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expireIn, _ := cmd.Flags().GetDuration("expire-in")
			var opts []storage.SetOption
			if expireIn > 0 {
				opts = append(opts, storage.ExpireIn(expireIn))
			}
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				return store.SetItem(ctx, storage.DecodePath(args[0]), parseValue(args[1]), opts...)
			})
		},
	}
	cmd.Flags().Duration("expire-in", 0, "Expire the item after this duration (KV modules only)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm KEY",
		Short: "Remove the item under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				key := storage.DecodePath(args[0])
				if recursive {
					return store.ClearItems(ctx, key)
				}
				return store.RemoveItem(ctx, key)
			})
		},
	}
	cmd.Flags().BoolP("recursive", "r", false, "Also remove every item below KEY")
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [PREFIX]",
		Short: "List the items below PREFIX",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []storage.ListOption
			if reverse, _ := cmd.Flags().GetBool("reverse"); reverse {
				opts = append(opts, storage.Reverse())
			}
			if n, _ := cmd.Flags().GetInt("page-size"); n > 0 {
				opts = append(opts, storage.PageSize(n))
			}
			var prefix storage.Key
			if len(args) == 1 {
				prefix = storage.DecodePath(args[0])
			}
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				for e, err := range store.ListItems(ctx, prefix, opts...) {
					if err != nil {
						return err
					}
					data, err := json.Marshal(e.Value)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Key, data)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("reverse", false, "List in reverse key order")
	cmd.Flags().Int("page-size", 0, "Items fetched per backend round trip")
	return cmd
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp FROM TO",
		Short: "Copy the item at FROM and everything below it to TO",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				return storage.CopyItems[any](ctx, storage.DecodePath(args[0]), storage.DecodePath(args[1]), store, nil)
			})
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv FROM TO",
		Short: "Move the item at FROM and everything below it to TO",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				return storage.MoveItems[any](ctx, storage.DecodePath(args[0]), storage.DecodePath(args[1]), store, nil)
			})
		},
	}
}

func newWritableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "writable [KEY]",
		Short: "Report whether KEY can be written",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key storage.Key
			if len(args) == 1 {
				key = storage.DecodePath(args[0])
			}
			return withStore(cmd, func(ctx context.Context, store storage.Module[any]) error {
				ok, err := store.IsWritable(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

// parseValue decodes raw as JSON, falling back to the raw string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
