package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/routeloop/config"
	"github.com/kilianp07/routeloop/core/ledger"
)

var verifyActor string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the ledger hash chain and report any break",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyActor, "actor", "", "verify a single actor (default: all)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := ledger.NewStore(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	records, err := store.Query(cmd.Context(), ledger.Query{ActorID: verifyActor})
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	if len(records) == 0 {
		cmd.Println("ledger is empty")
		return nil
	}

	// Records come back ordered by actor then cycle, so chains are
	// contiguous slices.
	var failed bool
	for start := 0; start < len(records); {
		end := start
		for end < len(records) && records[end].ActorID == records[start].ActorID {
			end++
		}
		actor := records[start].ActorID
		if err := ledger.VerifyChain(records[start:end]); err != nil {
			failed = true
			cmd.Printf("%s: BROKEN (%v)\n", actor, err)
		} else {
			cmd.Printf("%s: ok (%d records)\n", actor, end-start)
		}
		start = end
	}
	if failed {
		return fmt.Errorf("ledger verification failed")
	}
	return nil
}
