package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/sheetclaw/internal/config"
	"github.com/KafClaw/sheetclaw/internal/grid"
)

var sheetForce bool

var sheetCmd = &cobra.Command{
	Use:   "sheet",
	Short: "Inspect or initialize the workbook",
}

var sheetInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the sample workbook",
	RunE:  runSheetInit,
}

var sheetReadCmd = &cobra.Command{
	Use:   "read [range]",
	Short: "Print cells of the first sheet",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSheetRead,
}

func init() {
	sheetInitCmd.Flags().BoolVar(&sheetForce, "force", false, "Overwrite an existing workbook")
	sheetCmd.AddCommand(sheetInitCmd)
	sheetCmd.AddCommand(sheetReadCmd)
}

func openSheet(cmd *cobra.Command) (*grid.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, false)
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return grid.NewStore(cfg.Paths.WorkbookPath()), nil
}

func runSheetInit(cmd *cobra.Command, args []string) error {
	sheet, err := openSheet(cmd)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(sheet.Path())
	existed := statErr == nil
	if err := sheet.Seed(sheetForce); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if existed && !sheetForce {
		fmt.Fprintf(out, "Workbook already exists at %s (use --force to overwrite)\n", sheet.Path())
		return nil
	}
	fmt.Fprintln(out, color.GreenString("✓ Created workbook %s", sheet.Path()))
	return nil
}

func runSheetRead(cmd *cobra.Command, args []string) error {
	sheet, err := openSheet(cmd)
	if err != nil {
		return err
	}
	ref := ""
	if len(args) == 1 {
		ref = args[0]
	}
	rows, err := sheet.Read(ref)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
		return nil
	}
	printTable(cmd.OutOrStdout(), rows)
	return nil
}

// printTable renders rows with the first row as header.
func printTable(out io.Writer, rows [][]any) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
		if i == 0 {
			seps := make([]string, len(cells))
			for j, c := range cells {
				seps[j] = strings.Repeat("-", max(len(c), 1))
			}
			fmt.Fprintln(w, strings.Join(seps, "\t"))
		}
	}
	w.Flush()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
