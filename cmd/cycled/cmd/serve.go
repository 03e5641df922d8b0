package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipgold/cycleledger/config"
	"github.com/ipgold/cycleledger/gateway"
	"github.com/ipgold/cycleledger/ledger"
	"github.com/ipgold/cycleledger/marketdata"
	"github.com/ipgold/cycleledger/projection"
	"github.com/ipgold/cycleledger/reconcile"
	"github.com/ipgold/cycleledger/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the projection and ledger HTTP API",
	Long: `Start the gateway with the ledger store and the periodic
reconciliation job.

Example:
  cycled serve --config engine.yaml`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to config file (defaults apply when omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfigPath != "" {
		loaded, err := config.LoadFromFile(serveConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	sched := schedule.Year2026()
	if cfg.Schedule.File != "" {
		loaded, err := schedule.Load(cfg.Schedule.File)
		if err != nil {
			return err
		}
		sched = loaded
	}

	store, err := ledger.Open(cfg.Ledger.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	proj := &projection.Projector{
		Rate:          cfg.Engine.CycleRate,
		CycleDays:     cfg.Engine.CycleDays,
		MaxCycles:     cfg.Engine.MaxCycles,
		MinInvestment: cfg.Engine.MinInvestment,
		MaxInvestment: cfg.Engine.MaxInvestment,
	}

	ttl, err := cfg.MarketData.ParseTTL()
	if err != nil {
		return fmt.Errorf("market data ttl: %w", err)
	}
	market := marketdata.NewService(marketdata.NewClient(cfg.MarketData.APIKey), ttl)

	job, err := reconcile.New(store, cfg.Reconcile.Cron)
	if err != nil {
		return err
	}

	srv := gateway.NewServer(cfg.Server.Addr, proj, store, market, sched)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	job.Start()

	log.Printf("[INFO] engine up: schedule year %d, %d cycles, rate %.1f%%",
		sched.Year, sched.Len(), cfg.Engine.CycleRate*100)

	<-ctx.Done()
	log.Println("[INFO] shutting down")

	job.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
