package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/originality/submission"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	envFile    string
}

var rootCmd = &cobra.Command{
	Use:   "originality",
	Short: "Originality checks for student submissions",
	Long: "originality stores uploaded documents, extracts their text, scores it\n" +
		"against an external or local originality checker and writes a report.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "YAML config file (optional)")
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.Version = version
}

// loadConfig resolves defaults, the YAML file, then the environment.
// Variables already set in the process win over the dotenv file.
func loadConfig() (*submission.Config, error) {
	if rootFlags.envFile != "" {
		if err := godotenv.Load(rootFlags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", rootFlags.envFile, err)
		}
	}

	cfg := submission.DefaultConfig()
	if rootFlags.configPath != "" {
		c, err := submission.LoadConfig(rootFlags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger writes JSON to w. The mcp command passes stderr because stdout
// carries the protocol.
func newLogger(level string, w *os.File) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}
