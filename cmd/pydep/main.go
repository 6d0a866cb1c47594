// Package main provides the pydep binary entry point.
// pydep finds the module dependencies of Python sources and builds the
// missing ones with redo.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	// Register import scanners via init()
	_ "github.com/c360studio/pydep/discover/python"

	"github.com/c360studio/pydep/buildtree"
	"github.com/c360studio/pydep/config"
	"github.com/c360studio/pydep/rule"
	"github.com/c360studio/pydep/shell"
	"github.com/c360studio/pydep/sourcedb"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "pydep"
)

const usage = "usage:\n  pydep /path/to/python_file.py"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags and the application built from them.
type options struct {
	configPath  string
	logLevel    string
	metricsFile string

	app *App
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "pydep [file]",
		Short: "Find and build Python module dependencies",
		Long: `pydep finds the module dependencies of a Python source file and builds
the missing ones with redo.

Run with a single file it prints the modules found on the search path, the
modules that could not be found, and then builds those that have a redo rule.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, opts, args)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write prometheus metrics to this file on exit")

	cmd.AddCommand(
		buildCmd(opts),
		runCmd(opts),
		indexCmd(opts),
		dbCmd(opts),
		watchCmd(opts),
		configCmd(opts),
		classifyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// setup configures logging, loads configuration and creates the App.
// The returned function releases it and writes metrics.
func (o *options) setup(cmd *cobra.Command) (func(), error) {
	logger := newLogger(cmd.ErrOrStderr(), o.logLevel)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	app, err := NewApp(cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	o.app = app

	return func() {
		if err := app.WriteMetrics(o.metricsFile); err != nil {
			logger.Warn("Failed to write metrics", "path", o.metricsFile, "error", err)
		}
		app.Close()
	}, nil
}

func newLogger(w io.Writer, logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// runDiagnose is the manual mode: print what a file depends on, then build
// the missing dependencies. Bad arguments print the usage line but the last
// argument is still used.
func runDiagnose(cmd *cobra.Command, opts *options, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) != 1 || (len(args) > 0 && strings.HasSuffix(args[len(args)-1], appName)) {
		fmt.Fprintln(out, usage)
	}
	if len(args) == 0 {
		return nil
	}
	source := args[len(args)-1]

	done, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	ctx := cmd.Context()
	deps, err := opts.app.Discover(ctx, source)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Finding dependencies for: %s\n\n", source)
	fmt.Fprintln(out, "Existing dependencies: ")
	for _, name := range deps.ResolvedNames() {
		fmt.Fprintln(out, name)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Nonexistent dependencies: ")
	for _, name := range deps.UnresolvedNames() {
		fmt.Fprintln(out, name)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Building nonexistent dependencies: ")

	art, err := opts.app.Build(ctx, source, true)
	if err != nil {
		return err
	}
	printArtifacts(out, art)
	return nil
}

func printArtifacts(out io.Writer, art *rule.Artifacts) {
	for _, p := range art.NotOnPath {
		fmt.Fprintln(out, p)
	}
}

func buildCmd(opts *options) *cobra.Command {
	var noUpdatePath bool
	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "Build the missing dependencies of a Python file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			art, err := opts.app.Build(cmd.Context(), args[0], !noUpdatePath)
			if err != nil {
				return err
			}
			printArtifacts(cmd.OutOrStdout(), art)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noUpdatePath, "no-update-path", false, "Do not extend the search path with the built dependencies")
	return cmd
}

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Build the dependencies of a Python file, then run it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			_, err = opts.app.RunScript(cmd.Context(), args[0])
			return err
		},
	}
}

func indexCmd(opts *options) *cobra.Command {
	var patterns, manifests []string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Record the modules built by redo rules in the source database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			cfg := opts.app.cfg
			if len(patterns) == 0 {
				patterns = cfg.Index.Patterns
			}
			if len(manifests) == 0 {
				manifests = cfg.Index.Manifests
			}
			n, err := opts.app.Index(cmd.Context(), patterns, manifests)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d modules\n", n)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Glob of redo rules to index (repeatable)")
	cmd.Flags().StringSliceVar(&manifests, "manifest", nil, "YAML manifest of module sources (repeatable)")
	return cmd
}

func dbCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and edit the source database",
	}

	withStore := func(cmd *cobra.Command, fn func(*sourcedb.Store) error) error {
		done, err := opts.setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		store, closeStore, err := opts.app.openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		return fn(store)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every module and its sources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(s *sourcedb.Store) error {
					all, err := s.List(cmd.Context())
					if err != nil {
						return err
					}
					for _, name := range sortedKeys(all) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, strings.Join(all[name], " "))
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get <module>",
			Short: "Print the sources of a module",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(s *sourcedb.Store) error {
					paths, err := s.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					for _, p := range paths {
						fmt.Fprintln(cmd.OutOrStdout(), p)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "put <module> <path>",
			Short: "Record a source for a module",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(s *sourcedb.Store) error {
					return s.Put(cmd.Context(), args[0], args[1])
				})
			},
		},
	)
	return cmd
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Rebuild the dependencies of a Python file whenever sources change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			return opts.app.Watch(cmd.Context(), args[0], func(art *rule.Artifacts) {
				fmt.Fprintf(out, "Built %d dependencies\n", len(art.NotOnPath))
				printArtifacts(out, art)
			})
		},
	}
}

func configCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	var projectDir string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file unless one exists",
		Long: `Writes the default configuration to ~/.config/pydep/config.yaml, or to
pydep.yaml in the directory given with --project. Existing files are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), opts.logLevel)
			if projectDir == "" {
				return config.NewLoader(logger).EnsureUserConfig()
			}

			path := filepath.Join(projectDir, config.ProjectConfigFile)
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
				return nil
			}
			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&projectDir, "project", "", "Write pydep.yaml in this project directory instead")

	cmd.AddCommand(initCmd)
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <path>...",
		Short: "Show where paths sit in the build tree",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, p := range args {
				loc := buildtree.Locate(p)
				category := string(loc.Category)
				if category == "" {
					category = "-"
				}
				fmt.Fprintf(out, "%s\tcategory=%s", p, category)
				if loc.Target != "" {
					fmt.Fprintf(out, " target=%s", loc.Target)
				}
				if loc.InBuild {
					fmt.Fprintf(out, " build_dir=%s", loc.BuildDir)
				}
				fmt.Fprintf(out, " src_dir=%s\n", loc.SrcDir)
			}
		},
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
