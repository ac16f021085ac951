package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ctxswitch/config"
)

// newRootCmd creates the base command with all child commands attached.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ctxsim",
		Short: "ctxsim runs draw context switches on a simulated a2xx GPU.",
		Long: `ctxsim builds the save and restore command streams of GPU draw ` +
			`contexts and runs context switch scenarios on a simulated device. ` +
			`It can print shadow surface sizes and disassemble PM4 streams.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "",
		"Path to a device configuration JSON file")
	rootCmd.PersistentFlags().StringSlice("env", nil,
		"Dotenv files with CTXSWITCH_* overrides")

	rootCmd.AddCommand(newRunCmd(), newSizesCmd(), newDisasmCmd())

	return rootCmd
}

// Execute runs the command line and exits.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadDeviceConfig builds the device configuration from the --config file,
// the --env files and the environment.
func loadDeviceConfig(cmd *cobra.Command) (*config.DeviceConfig, error) {
	cfg := config.DefaultDeviceConfig()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		var err error
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	envFiles, _ := cmd.Flags().GetStringSlice("env")
	if err := cfg.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}

	return cfg, nil
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
