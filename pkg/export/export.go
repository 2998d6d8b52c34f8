package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/routeloop/core/ledger"
)

// WriteJSON writes the ledger records to w in JSON format.
func WriteJSON(w io.Writer, records []ledger.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteCSV writes the ledger records to w in CSV format suitable for audit
// spreadsheets. The record hash is recomputed so exports stay verifiable
// against the chain.
func WriteCSV(w io.Writer, records []ledger.Record) error {
	cw := csv.NewWriter(w)
	header := []string{"actor_id", "cycle_id", "state", "solver", "timestamp", "record_hash", "prev_record_hash", "anchor_ref"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			r.ActorID,
			strconv.FormatUint(r.CycleID, 10),
			string(r.State),
			string(r.SolverKind),
			r.Timestamp.Format(time.RFC3339),
			r.Hash(),
			r.PrevRecordHash,
			r.AnchorRef,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
