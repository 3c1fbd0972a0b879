package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fetchFlags struct {
	output string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <relative-path>",
	Short: "Print a stored original or report",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchFlags.output, "output", "o", "", "write to this file instead of stdout")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, os.Stderr)

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	data, mime, err := a.pipeline.FetchStoredBytes(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("fetch %s: %w", args[0], err)
	}
	if fetchFlags.output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(fetchFlags.output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d bytes (%s)\n", fetchFlags.output, len(data), mime)
	return nil
}
