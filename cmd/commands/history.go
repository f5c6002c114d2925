package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"holders-backend/internal/history"
	"holders-backend/internal/printer"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the search history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently searched tokens, most recent first",
	RunE:  runHistoryList,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every search history entry",
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(ctx context.Context) (*history.History, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return nil, printer.Error("failed to open search history", err.Error(), nil)
	}
	h := history.New(store)
	if err := h.Load(ctx); err != nil {
		h.Close()
		return nil, printer.Error("failed to load search history", err.Error(), nil)
	}
	return h, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	entries := h.List()
	if len(entries) == 0 {
		printer.Info("No searches recorded\n")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MINT\tNAME\tSYMBOL\tSEARCHED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Symbol, formatAge(time.Since(e.SearchedAt)))
	}
	return w.Flush()
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.Clear(ctx); err != nil {
		return printer.Error("failed to clear search history", err.Error(), nil)
	}
	printer.Success("Search history cleared\n")
	return nil
}

// formatAge renders d as a compact "ago" string
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
