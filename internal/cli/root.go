// Package cli implements the sheetclaw command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/sheetclaw/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ____  _               _    ____ _\n" +
		" / ___|| |__   ___  ___| |_ / ___| | __ ___      __\n" +
		" \\___ \\| '_ \\ / _ \\/ _ \\ __| |   | |/ _` \\ \\ /\\ / /\n" +
		"  ___) | | | |  __/  __/ |_| |___| | (_| |\\ V  V /\n" +
		" |____/|_| |_|\\___|\\___|\\__|\\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:           "sheetclaw",
	Short:         "SheetClaw - chat with your spreadsheet",
	Long:          color.CyanString(logo) + "\nAn LLM assistant that reads and edits one workbook, asking before it changes anything.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sheetclaw %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sheetCmd)
	rootCmd.AddCommand(threadsCmd)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}

// setupLogging installs the default slog logger. JSON output is used for
// the long-running server, text otherwise.
func setupLogging(w io.Writer, level string, jsonOutput bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
