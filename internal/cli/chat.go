package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KafClaw/sheetclaw/internal/agent"
	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/config"
	"github.com/KafClaw/sheetclaw/internal/provider"
)

var (
	chatThreadID string
	chatVerbose  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the spreadsheet assistant in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThreadID, "thread", "t", "", "Thread ID to continue (default: new thread)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Show logs at the configured level")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level := "warn"
	if chatVerbose {
		level = cfg.LogLevel
	}
	setupLogging(cmd.ErrOrStderr(), level, false)

	prov, err := provider.Resolve(cfg)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	threadID := chatThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	printHeader(out, "💬 SheetClaw Chat")
	fmt.Fprintf(out, "Thread %s (%s). Type 'exit' to quit.\n\n", threadID, cfg.Model.Name)

	return chatREPL(cmd.Context(), a.newLoop(prov), a.ledger, threadID, cmd.InOrStdin(), out)
}

// chatREPL reads one message per line until EOF or "exit".
func chatREPL(ctx context.Context, loop *agent.Loop, ledger *approval.Ledger, threadID string, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	you := color.New(color.FgGreen, color.Bold)
	for {
		you.Fprint(out, "you> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "/exit", "/quit":
			return nil
		}

		fmt.Fprint(out, color.CyanString("bot> "))
		if _, err := loop.ProcessDirect(ctx, threadID, line, chatSink(out)); err != nil {
			fmt.Fprintln(out, color.RedString("\nError: %v", err))
			continue
		}
		fmt.Fprintln(out)

		for _, p := range ledger.Pending(threadID) {
			if !p.Approved {
				fmt.Fprintln(out, color.YellowString("⚠ Pending confirmation for %s: %s (reply yes or no within %s)", p.ToolName, p.Description, ledger.TTL()))
			}
		}
	}
}

func chatSink(out io.Writer) agent.EventSink {
	return func(ev agent.Event) {
		switch ev.Type {
		case agent.EventText:
			fmt.Fprint(out, ev.Text)
		case agent.EventToolCall:
			args, _ := json.Marshal(ev.Args)
			fmt.Fprintln(out, color.HiBlackString("\n  → %s %s", ev.Tool, args))
		case agent.EventError:
			fmt.Fprintln(out, color.RedString("\n  ✗ %s", ev.Error))
		case agent.EventFinish:
			if len(ev.Table) > 0 {
				fmt.Fprintln(out)
				printTable(out, ev.Table)
			}
		}
	}
}
