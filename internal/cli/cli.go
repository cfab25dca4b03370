package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/specialistvlad/fnnxgo/internal/app"
	"github.com/specialistvlad/fnnxgo/internal/config"
	"github.com/specialistvlad/fnnxgo/internal/runtime"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

func failure(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: 1, Message: err.Error()}
}

// Execute runs the fnnx command line. Any returned error is an *ExitError:
// code 2 for usage errors, 1 for everything else. impls supplies op
// implementations to the run command and may be nil.
func Execute(ctx context.Context, args []string, outW, errW io.Writer, impls *runtime.Implementations) error {
	root := NewRootCommand(outW, errW, impls)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		// Errors cobra raises itself, such as unknown commands.
		return usageError("%v", err)
	}
	return nil
}

type globalFlags struct {
	logLevel        string
	logFormat       string
	configPaths     []string
	parallel        bool
	maxWorkers      int
	allowUnknownOps bool
}

// NewRootCommand builds the command tree. Command output goes to outW, logs
// and diagnostics to errW.
func NewRootCommand(outW, errW io.Writer, impls *runtime.Implementations) *cobra.Command {
	var (
		flags  globalFlags
		fnnx   *app.App
		loader = config.NewHCLLoader()
	)

	root := &cobra.Command{
		Use:   "fnnx",
		Short: "Validate, inspect and run FNNX model packages",
		Long: `fnnx works with FNNX model packages: directories or tar archives holding a
manifest, op instances, a root variant (pipeline or pyfunc) and artifacts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o, err := flags.overrides(cmd)
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig(cmd.Context(), loader, o, flags.configPaths...)
			if err != nil {
				return usageError("%v", err)
			}
			fnnx = app.NewApp(errW, cfg, impls)
			return nil
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'. Overrides the config file.")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log output format: 'text' or 'json'. Overrides the config file.")
	pf.StringSliceVarP(&flags.configPaths, "config", "c", nil, "HCL configuration file or directory. May be repeated.")
	pf.BoolVar(&flags.parallel, "parallel", false, "Run independent pipeline nodes concurrently.")
	pf.IntVar(&flags.maxWorkers, "max-workers", 0, "Maximum concurrently running pipeline nodes with --parallel; 0 is unbounded.")
	pf.BoolVar(&flags.allowUnknownOps, "allow-unknown-ops", false, "Load op instances of unknown kinds instead of rejecting the package.")

	appFn := func() *app.App { return fnnx }
	root.AddCommand(
		newValidateCmd(appFn),
		newInspectCmd(appFn),
		newRunCmd(appFn),
		newSchemaCmd(appFn),
	)
	return root
}

func (f *globalFlags) overrides(cmd *cobra.Command) (app.Overrides, error) {
	var o app.Overrides
	if f.logLevel != "" {
		level := strings.ToLower(f.logLevel)
		if !slices.Contains(config.LogLevels, level) {
			return o, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
		}
		o.LogLevel = level
	}
	if f.logFormat != "" {
		format := strings.ToLower(f.logFormat)
		if !slices.Contains(config.LogFormats, format) {
			return o, usageError("invalid log-format: must be 'text' or 'json'")
		}
		o.LogFormat = format
	}
	pf := cmd.Flags()
	if pf.Changed("parallel") {
		o.ParallelNodes = &f.parallel
	}
	if pf.Changed("max-workers") {
		if f.maxWorkers < 0 {
			return o, usageError("invalid max-workers: must not be negative")
		}
		o.MaxWorkers = &f.maxWorkers
	}
	if pf.Changed("allow-unknown-ops") {
		o.AllowUnknownOps = &f.allowUnknownOps
	}
	return o, nil
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int, names string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError("%s expects %s, got %d argument(s)", cmd.Name(), names, len(args))
		}
		return nil
	}
}
