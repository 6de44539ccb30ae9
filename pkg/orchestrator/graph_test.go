package orchestrator

import "testing"

// TestRoutingTableIsClosed ensures every successor named in routingTable is
// itself either a key in routingTable or the synthetic rejected exit —
// catching a typo'd NodeName before it becomes a runtime routing failure.
func TestRoutingTableIsClosed(t *testing.T) {
	for from, successors := range routingTable {
		for _, to := range successors {
			if to == NodeRejectedExit {
				continue
			}
			if _, ok := routingTable[to]; !ok {
				t.Errorf("node %q declares successor %q which has no routing table entry of its own", from, to)
			}
		}
	}
}

func TestCheckRouting_AllowsDeclaredTransition(t *testing.T) {
	if err := checkRouting(NodeGenerateSQL, NodeValidate); err != nil {
		t.Errorf("expected declared transition to be allowed, got: %v", err)
	}
}

func TestCheckRouting_RejectsUndeclaredTransition(t *testing.T) {
	if err := checkRouting(NodeGenerateSQL, NodeExecute); err == nil {
		t.Error("expected undeclared transition generate_sql -> execute to be rejected")
	}
}

func TestCheckRouting_RejectsUnknownSourceNode(t *testing.T) {
	if err := checkRouting(NodeName("nonexistent"), NodeError); err == nil {
		t.Error("expected unknown source node to be rejected")
	}
}

func TestProbeSQLAllowed(t *testing.T) {
	if !probeSQLAllowed(DatabaseOracle) {
		t.Error("expected probe_sql to be allowed for Oracle")
	}
	if probeSQLAllowed(DatabasePostgres) || probeSQLAllowed(DatabaseDoris) {
		t.Error("expected probe_sql to be disallowed outside Oracle")
	}
}
