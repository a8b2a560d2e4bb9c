package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xtrace/pkg/cmd/options"
)

func testOptions() *options.CommonOptions {
	return options.NewCommonOptions(
		options.WithContext(context.Background()),
		options.WithLogger(log.New(log.ConsoleWriter{Out: os.Stderr})),
	)
}

func TestNewCommand(t *testing.T) {
	tests := []struct {
		name     string
		options  *options.CommonOptions
		validate func(*testing.T, *cobra.Command)
	}{
		{
			name:    "default command creation",
			options: testOptions(),
			validate: func(t *testing.T, cmd *cobra.Command) {
				require.Equal(t, "xtrace", cmd.Name())
				require.Contains(t, cmd.Short, "execution tracer")
				require.True(t, cmd.HasSubCommands())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand(tt.options)
			require.NotNil(t, cmd)

			if tt.validate != nil {
				tt.validate(t, cmd)
			}
		})
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewCommand(testOptions())

	flag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	require.Equal(t, "string", flag.Value.Type())
	require.Equal(t, "info", flag.DefValue)
	require.Contains(t, flag.Usage, "log level")
}

func TestCommandSubcommands(t *testing.T) {
	cmd := NewCommand(testOptions())

	expectedSubcommands := []string{"trace", "profile"}
	actualSubcommands := make([]string, 0)

	for _, subCmd := range cmd.Commands() {
		actualSubcommands = append(actualSubcommands, subCmd.Name())
	}

	for _, expected := range expectedSubcommands {
		require.Contains(t, actualSubcommands, expected)
	}
}

func TestProfileCommandFlags(t *testing.T) {
	cmd := NewCommand(testOptions())

	profileCmd, _, err := cmd.Find([]string{"profile"})
	require.NoError(t, err)

	stack := profileCmd.Flags().Lookup("stack")
	require.NotNil(t, stack)
	require.Equal(t, "bool", stack.Value.Type())
	require.Equal(t, "false", stack.DefValue)

	frequency := profileCmd.Flags().Lookup("frequency")
	require.NotNil(t, frequency)
	require.Equal(t, "1000", frequency.DefValue)
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewCommand(testOptions())

	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	outputFlag := traceCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	require.Equal(t, "json", outputFlag.DefValue)

	require.NotNil(t, traceCmd.Flags().Lookup("pid"))
	require.NotNil(t, traceCmd.Flags().Lookup("duration"))
}

func TestCommandHelp(t *testing.T) {
	cmd := NewCommand(testOptions())

	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	helpOutput := output.String()
	require.Contains(t, helpOutput, "xtrace")
	require.Contains(t, helpOutput, "Available Commands:")
	require.Contains(t, helpOutput, "trace")
	require.Contains(t, helpOutput, "profile")
}

func TestCommandInvalidFlag(t *testing.T) {
	cmd := NewCommand(testOptions())

	var output bytes.Buffer
	cmd.SetErr(&output)
	cmd.SetArgs([]string{"--invalid-flag"})

	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, output.String(), "unknown flag")
}
