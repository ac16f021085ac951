package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/spf13/cobra"

	"github.com/sarchlab/ctxswitch/drawctxt"
	"github.com/sarchlab/ctxswitch/monitor"
	"github.com/sarchlab/ctxswitch/recording"
	"github.com/sarchlab/ctxswitch/scenario"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [scenario.json]",
		Short: "Run context switch scenarios.",
		Long: "`run` runs the scenarios of a JSON file, or the builtin " +
			"scenarios when no file is given, and reports what every switch emitted.",
		Args: cobra.MaximumNArgs(1),
		RunE: runScenarios,
	}

	runCmd.Flags().StringSlice("only", nil, "Only run the named scenarios")
	runCmd.Flags().Bool("log", false, "Log every context event to stderr")
	runCmd.Flags().Bool("record", false, "Record context events into SQLite")
	runCmd.Flags().String("record-path", "",
		"Database path without extension (default: ctxsim_<id>)")
	runCmd.Flags().Bool("monitor", false, "Serve the device state over HTTP")
	runCmd.Flags().Int("monitor-port", 0, "Port of the monitoring server")
	runCmd.Flags().Bool("open", false, "Open the monitoring page in a browser")
	runCmd.Flags().String("format", "text", "Result format: text, csv or json")
	runCmd.Flags().BoolP("verbose", "v", false, "Print every step")

	return runCmd
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadDeviceConfig(cmd)
	if err != nil {
		return err
	}

	scenarios := scenario.Builtins()
	if len(args) == 1 {
		scenarios, err = scenario.Load(args[0])
		if err != nil {
			return err
		}
	}

	only, _ := cmd.Flags().GetStringSlice("only")
	scenarios, err = selectScenarios(scenarios, only)
	if err != nil {
		return err
	}

	hcfg := scenario.DefaultConfig()
	hcfg.Device = cfg
	hcfg.Output = cmd.OutOrStdout()
	hcfg.Verbose, _ = cmd.Flags().GetBool("verbose")

	if logEvents, _ := cmd.Flags().GetBool("log"); logEvents {
		hcfg.Hooks = append(hcfg.Hooks,
			drawctxt.NewSwitchLogger(log.New(os.Stderr, "", 0)))
	}

	if record, _ := cmd.Flags().GetBool("record"); record {
		path, _ := cmd.Flags().GetString("record-path")
		recorder, err := recording.NewSQLiteRecorder(path)
		if err != nil {
			return err
		}
		defer recorder.Close()

		hcfg.Hooks = append(hcfg.Hooks, sim.Hook(recorder))
	}

	var m *monitor.Monitor
	if serve, _ := cmd.Flags().GetBool("monitor"); serve {
		port, _ := cmd.Flags().GetInt("monitor-port")
		m = monitor.NewMonitor().WithPortNumber(port)
		hcfg.DeviceReady = m.RegisterDevice

		url, err := m.StartServer()
		if err != nil {
			return err
		}

		if open, _ := cmd.Flags().GetBool("open"); open {
			if err := monitor.OpenBrowser(url); err != nil {
				warn("cannot open browser: %v", err)
			}
		}
	}

	harness := scenario.NewHarness(hcfg)
	harness.AddScenarios(scenarios)

	results, err := harness.RunAll()
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if err := printResults(harness, results, format, cmd); err != nil {
		return err
	}

	if m != nil {
		warn("Scenarios done. Press Ctrl-C to stop the monitoring server.")
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt)
		<-stop
	}

	return nil
}

func selectScenarios(all []scenario.Scenario, names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]scenario.Scenario, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}

	selected := make([]scenario.Scenario, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no scenario named %s", name)
		}
		selected = append(selected, s)
	}

	return selected, nil
}

func printResults(
	h *scenario.Harness,
	results []scenario.Result,
	format string,
	cmd *cobra.Command,
) error {
	switch format {
	case "text":
		h.PrintResults(results)
	case "csv":
		h.PrintCSV(results)
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	return nil
}
