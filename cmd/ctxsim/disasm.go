package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ctxswitch/pm4"
	"github.com/sarchlab/ctxswitch/scenario"
)

func newDisasmCmd() *cobra.Command {
	disasmCmd := &cobra.Command{
		Use:   "disasm [words-file]",
		Short: "Disassemble PM4 command words.",
		Long: "`disasm` decodes the hexadecimal command words of a file, or the " +
			"stream emitted by a builtin scenario with --scenario.",
		Args: cobra.MaximumNArgs(1),
		RunE: disassemble,
	}

	disasmCmd.Flags().String("scenario", "",
		"Disassemble the stream of the named builtin scenario")

	return disasmCmd
}

func disassemble(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("scenario")

	var (
		words []uint32
		err   error
	)

	switch {
	case name != "":
		words, err = scenarioStream(cmd, name)
	case len(args) == 1:
		words, err = readWordsFile(args[0])
	default:
		words, err = readWords(cmd.InOrStdin())
	}
	if err != nil {
		return err
	}

	packets, err := pm4.NewDecoder().Decode(words)
	for _, p := range packets {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}

	return err
}

func scenarioStream(cmd *cobra.Command, name string) ([]uint32, error) {
	cfg, err := loadDeviceConfig(cmd)
	if err != nil {
		return nil, err
	}

	selected, err := selectScenarios(scenario.Builtins(), []string{name})
	if err != nil {
		return nil, err
	}

	hcfg := scenario.DefaultConfig()
	hcfg.Device = cfg
	hcfg.Output = cmd.ErrOrStderr()

	result, err := scenario.NewHarness(hcfg).Run(selected[0])
	if err != nil {
		return nil, err
	}

	return result.Stream, nil
}

func readWordsFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readWords(f)
}

// readWords reads whitespace separated hexadecimal words. Text after '#' is
// ignored.
func readWords(r io.Reader) ([]uint32, error) {
	var words []uint32

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		for _, field := range strings.Fields(line) {
			field = strings.TrimPrefix(strings.ToLower(field), "0x")
			w, err := strconv.ParseUint(field, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid word %q: %w", field, err)
			}
			words = append(words, uint32(w))
		}
	}

	return words, scanner.Err()
}
