package checkpoint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/wisbric/amila/pkg/orchestrator"
)

func TestQueryStateRoundTripsThroughJSON(t *testing.T) {
	state := &orchestrator.QueryState{
		QueryID:      "q-1",
		ThreadID:     "t-1",
		UserQuery:    "how many orders last week",
		DatabaseType: orchestrator.DatabasePostgres,
		CreatedAt:    time.Now().Truncate(time.Second),
	}
	state.AppendNodeHistory(orchestrator.NodeHistoryEntry{Name: orchestrator.NodeUnderstand, Status: "ok"})

	payload, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got orchestrator.QueryState
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.QueryID != state.QueryID || got.ThreadID != state.ThreadID {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
	if len(got.NodeHistory) != 1 {
		t.Fatalf("expected 1 node history entry, got %d", len(got.NodeHistory))
	}
}
