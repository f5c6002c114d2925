package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"holders-backend/internal/epoch"
	"holders-backend/internal/fetcher"
	"holders-backend/internal/metadata"
	"holders-backend/internal/printer"
	"holders-backend/internal/rpc"
	"holders-backend/internal/utils"
)

var countJSON bool

var countCmd = &cobra.Command{
	Use:   "count [MINT]",
	Short: "Count the current holders of a token once",
	Long: `Fetch every token account of MINT and print the number of distinct
owners holding a positive balance. Without MINT the configured subject is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCount,
}

func init() {
	countCmd.Flags().BoolVar(&countJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(countCmd)
}

// countResult is the --json output of the count command
type countResult struct {
	Mint    string `json:"mint"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Holders int    `json:"holders"`
	Records int    `json:"records"`
	Elapsed string `json:"elapsed"`
}

func runCount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mint := cfg.Pipeline.Subject
	if len(args) == 1 {
		mint = args[0]
	}
	if !utils.IsValidAddress(mint) {
		return printer.Error("invalid mint", fmt.Sprintf("%q is not a base58 token address", mint), nil)
	}

	client, err := rpc.New(cfg.RPC)
	if err != nil {
		return printer.Error("invalid RPC configuration", err.Error(), nil)
	}
	defer client.Close()

	ctx := context.Background()
	epochs := epoch.New(mint)
	aggregator := fetcher.NewAggregator(cfg.Pipeline.Fetcher, client, epochs)

	if !countJSON {
		printer.Step("Fetching token accounts for %s\n", utils.ShortAddress(mint))
	}
	start := time.Now()
	records, err := aggregator.Collect(ctx, epochs.Current())
	if err != nil {
		return printer.Error("failed to fetch token accounts", err.Error(),
			[]string{"Check HELIUS_API_KEY and the RPC endpoint"})
	}
	md := metadata.NewService(client).Lookup(ctx, mint)

	result := countResult{
		Mint:    mint,
		Name:    md.Name,
		Symbol:  md.Symbol,
		Holders: fetcher.CountHolders(records),
		Records: len(records),
		Elapsed: time.Since(start).Round(time.Millisecond).String(),
	}

	if countJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printer.Value("Token", fmt.Sprintf("%s (%s)", result.Name, result.Symbol))
	printer.Value("Accounts", result.Records)
	printer.Value("Holders", result.Holders)
	printer.Value("Elapsed", result.Elapsed)
	return nil
}
