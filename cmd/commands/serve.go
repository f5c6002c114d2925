package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"holders-backend/internal/broadcaster"
	"holders-backend/internal/history"
	"holders-backend/internal/metadata"
	"holders-backend/internal/pipeline"
	"holders-backend/internal/printer"
	"holders-backend/internal/rpc"
	"holders-backend/internal/server"
	"holders-backend/internal/utils"
)

var serveSubject string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Track a token and serve the series over HTTP and WebSocket",
	Long: `Start the tracker: poll the holder count at the configured cadence,
push every update to clients connected on /ws and expose the control API
under /api.

Examples:
  # Track the default token
  holders serve

  # Track a specific mint
  holders serve --subject DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveSubject, "subject", "s", "", "Token mint to track (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveSubject != "" {
		cfg.Pipeline.Subject = serveSubject
	}
	if cfg.RPC.APIKey == "" {
		printer.Warning("HELIUS_API_KEY is not set; requests will likely be rejected\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rpc.New(cfg.RPC)
	if err != nil {
		return printer.Error("invalid RPC configuration", err.Error(), nil)
	}
	defer client.Close()

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return printer.Error("failed to open search history", err.Error(),
			[]string{"Set history.backend to memory to run without persistence"})
	}
	hist := history.New(store)
	defer hist.Close()
	if err := hist.Load(ctx); err != nil {
		return printer.Error("failed to load search history", err.Error(), nil)
	}

	hub := broadcaster.NewBroadcaster(cfg.Broadcaster)
	coord := pipeline.NewCoordinator(cfg.Pipeline, client, hub, metadata.NewService(client), hist)
	srv := server.NewServer(cfg.Server, coord, hub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	coord.Start(gctx)
	printer.Success("Tracking %s every %s on %s\n",
		utils.ShortAddress(coord.Subject()), coord.Cadence(), cfg.Server.Addr)

	err = g.Wait()
	coord.Stop()
	utils.Info("Served %d provider requests", client.RequestCount())
	if err != nil {
		return printer.Error("server stopped", err.Error(), nil)
	}
	printer.Success("Shutdown complete\n")
	return nil
}
