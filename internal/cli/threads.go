package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/sheetclaw/internal/config"
	"github.com/KafClaw/sheetclaw/internal/threads"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage stored chat threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, newest first",
	Args:  cobra.NoArgs,
	RunE:  runThreadsList,
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a thread and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsDelete,
}

func init() {
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
}

func openThreads(cmd *cobra.Command) (*threads.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, false)
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return threads.Open(cfg.Store.Driver, cfg.Paths.DatabasePath())
}

func runThreadsList(cmd *cobra.Command, args []string) error {
	store, err := openThreads(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListThreads(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No threads.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCREATED")
	fmt.Fprintln(w, "--\t-----\t-------")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Title, t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runThreadsDelete(cmd *cobra.Command, args []string) error {
	store, err := openThreads(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.DeleteThread(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("thread %s not found", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Deleted thread %s", args[0]))
	return nil
}
