package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apiledger "github.com/kilianp07/routeloop/api/ledger"
	"github.com/kilianp07/routeloop/app"
	"github.com/kilianp07/routeloop/config"
	"github.com/kilianp07/routeloop/infra/logger"
)

var (
	cfgPath  string
	apiAddr  string
	apiToken string
)

var rootCmd = &cobra.Command{
	Use:   "routeloop",
	Short: "Predictive route optimization control loop",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVar(&apiAddr, "api-addr", "", "address of the ledger query API (disabled when empty)")
	rootCmd.Flags().StringVar(&apiToken, "api-token", "", "bearer token protecting the ledger query API")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.New("main").Errorf("config watcher close: %v", err)
		}
	}()

	svc, err := app.NewFromWatcher(watcher)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	if apiAddr != "" {
		go serveAPI(ctx, svc, apiAddr, apiToken)
	}
	return svc.Run(ctx)
}

func serveAPI(ctx context.Context, svc *app.Service, addr, token string) {
	log := logger.New("api")
	mux := http.NewServeMux()
	mux.Handle("/api/ledger/records", apiledger.NewRecordHandler(svc.Ledger(), token))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("api server: %v", err)
	}
}
