package main

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/leonardcser/remote-caching/internal/cache"
	"github.com/leonardcser/remote-caching/internal/config"
	"github.com/leonardcser/remote-caching/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	logger.SetOutput(os.Stderr)
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	ttl     string
	backend string
	dir     string
	verbose bool
	out     io.Writer
	c       *cache.Cache
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:          "cachectl",
		Short:        "Inspect and maintain the remote response cache",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.dir, "dir", "", "cache directory (default $"+config.EnvDir+" or ~/.cache/remote-caching)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "store backend: sqlite or bolt")
	root.PersistentFlags().StringVar(&a.ttl, "ttl", "", "default TTL, e.g. 30m or 1d")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log cache diagnostics to stderr")

	root.AddCommand(a.statsCmd(), a.getCmd(), a.clearCmd(), a.sweepCmd())
	return root
}

// withCache opens the cache around fn and always disposes it afterwards.
func (a *app) withCache(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd.Context()); err != nil {
			return err
		}
		defer a.c.Dispose()
		return fn(cmd, args)
	}
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dir != "" {
		cfg.Dir = a.dir
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.ttl != "" {
		d, err := config.ParseDuration(a.ttl)
		if err != nil {
			return fmt.Errorf("--ttl: %w", err)
		}
		cfg.DefaultTTL = d
	}
	cfg.Verbose = cfg.Verbose || a.verbose
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Verbose {
		_ = logger.EnableVerbose()
	}
	a.c = cache.New(
		cache.WithDir(cfg.Dir),
		cache.WithBackend(cfg.Backend),
		cache.WithLogger(logger.Named("RemoteCaching")),
	)
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.c.Init(ctx, cfg.DefaultTTL, cfg.Verbose); err != nil {
		a.c = nil
		return err
	}
	return nil
}

func (a *app) statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry count, stored size and expired entries",
		Args:  cobra.NoArgs,
		RunE: a.withCache(func(cmd *cobra.Command, _ []string) error {
			st, err := a.c.GetCacheStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				s, err := json.MarshalToString(st)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, s)
				return nil
			}
			fmt.Fprintf(a.out, "entries: %d\nsize:    %d bytes\nexpired: %d\n", st.TotalEntries, st.TotalSizeBytes, st.ExpiredEntries)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the cached JSON value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCache(func(cmd *cobra.Command, args []string) error {
			v, ok, err := cache.Lookup(cmd.Context(), a.c, args[0], cache.DecodeAs[any]())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no valid entry for %q", args[0])
			}
			s, err := json.MarshalToString(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, s)
			return nil
		}),
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [key]",
		Short: "Remove one key, or every entry when no key is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.withCache(func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.c.ClearCacheForKey(cmd.Context(), args[0])
			}
			return a.c.ClearCache(cmd.Context())
		}),
	}
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired entries",
		Args:  cobra.NoArgs,
		RunE: a.withCache(func(cmd *cobra.Command, _ []string) error {
			n, err := a.c.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %d expired entries\n", n)
			return nil
		}),
	}
}
