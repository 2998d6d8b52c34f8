package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/routeloop/core/ledger"
	"github.com/kilianp07/routeloop/core/model"
)

func sampleRecords() []ledger.Record {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []ledger.Record{
		{
			CycleID:    1,
			ActorID:    "actor-a",
			State:      ledger.StateArchived,
			SolverKind: model.SolverClassical,
			Timestamp:  ts,
			AnchorRef:  "anchor-1",
		},
		{
			CycleID:    2,
			ActorID:    "actor-a",
			State:      ledger.StateCommitted,
			SolverKind: model.SolverAlternative,
			Timestamp:  ts.Add(30 * time.Second),
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRecords()))

	var out []ledger.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, ledger.StateCommitted, out[1].State)
}

func TestWriteCSV(t *testing.T) {
	recs := sampleRecords()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "actor_id,cycle_id,state"))
	require.Contains(t, lines[1], recs[0].Hash())
	require.Contains(t, lines[2], "alternative")
}
