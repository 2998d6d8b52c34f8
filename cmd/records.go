package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/routeloop/config"
	"github.com/kilianp07/routeloop/core/ledger"
	"github.com/kilianp07/routeloop/pkg/export"
)

var (
	recActor  string
	recState  string
	recCycle  uint64
	recStart  string
	recEnd    string
	recFormat string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print ledger records as JSON",
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().StringVar(&recActor, "actor", "", "filter by actor id")
	recordsCmd.Flags().StringVar(&recState, "state", "", "filter by record state")
	recordsCmd.Flags().Uint64Var(&recCycle, "cycle", 0, "filter by cycle id")
	recordsCmd.Flags().StringVar(&recStart, "start", "", "RFC3339 lower bound on the record timestamp")
	recordsCmd.Flags().StringVar(&recEnd, "end", "", "RFC3339 upper bound on the record timestamp")
	recordsCmd.Flags().StringVar(&recFormat, "format", "json", "output format: json or csv")
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := ledger.NewStore(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	q := ledger.Query{ActorID: recActor, CycleID: recCycle, State: ledger.State(recState)}
	if recStart != "" {
		if q.Start, err = time.Parse(time.RFC3339, recStart); err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
	}
	if recEnd != "" {
		if q.End, err = time.Parse(time.RFC3339, recEnd); err != nil {
			return fmt.Errorf("parse --end: %w", err)
		}
	}

	records, err := store.Query(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	switch recFormat {
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), records)
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), records)
	default:
		return fmt.Errorf("unknown format %q", recFormat)
	}
}
