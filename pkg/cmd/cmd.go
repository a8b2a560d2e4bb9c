package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xtrace/internal/settings"
	"github.com/maxgio92/xtrace/pkg/cmd/options"
	"github.com/maxgio92/xtrace/pkg/cmd/profile"
	"github.com/maxgio92/xtrace/pkg/cmd/trace"
)

const logLevelInfo = "info"

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:               settings.CmdName,
		Short:             settings.CmdName + " is an execution tracer and statistical profiler",
		Long:              settings.CmdName + ` captures kernel syscall boundary events and CPU-cycle samples from running programs with minimal overhead, and renders them as structured event logs, flamegraphs and hotspot tables.`,
		Version:           settings.Version,
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(trace.NewCommand(opts))
	cmd.AddCommand(profile.NewCommand(opts))

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", logLevelInfo, "Set the log level (trace, debug, info, warn, error, fatal, panic)")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the root command.
func Execute(probe []byte) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	// Process-wide instrumentation switch, read once at startup.
	traceEnabled, _ := strconv.ParseBool(os.Getenv(settings.EnvTrace))

	opts := options.NewCommonOptions(
		options.WithProbe(probe),
		options.WithProbeObjName(settings.ProbeObjName),
		options.WithContext(ctx),
		options.WithLogger(logger),
		options.WithTraceEnabled(traceEnabled),
	)

	if err := NewCommand(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
