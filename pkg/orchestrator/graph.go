package orchestrator

import "fmt"

// routingTable is the static, total routing table from spec.md §4.1: every
// node's declared set of legal successors. A node returning a successor
// not listed here is a programming error and is rejected fail-closed by
// checkRouting, never silently routed.
var routingTable = map[NodeName][]NodeName{
	NodeUnderstand:          {NodeRetrieveContext, NodeError},
	NodeRetrieveContext:     {NodeDecompose, NodeError},
	NodeDecompose:           {NodeGenerateHypothesis, NodeGenerateSQL},
	NodeGenerateHypothesis:  {NodeGenerateSQL, NodeError},
	NodeGenerateSQL:         {NodeValidate, NodeError},
	// valid SQL always reaches await_approval (every query requires HITL
	// review in this design, per spec.md §4.1's routing example); probe_sql
	// is the Oracle-only structural dry-run interposed on the way there.
	// Invalid SQL goes to repair_sql, or to generate_fallback_sql once the
	// repair cap is reached.
	NodeValidate:  {NodeProbeSQL, NodeAwaitApproval, NodeRepairSQL, NodeGenerateFallbackSQL},
	NodeProbeSQL:  {NodeAwaitApproval, NodeRepairSQL, NodeError},
	NodeAwaitApproval:       {NodeExecute, NodeRejectedExit, NodeError},
	NodeExecute:             {NodeValidateResults, NodeRepairSQL, NodeGenerateFallbackSQL, NodeError},
	NodeValidateResults:     {NodeFormatResults, NodePivotStrategy},
	NodePivotStrategy:       {NodeGenerateHypothesis, NodeFormatResults},
	NodeRepairSQL:           {NodeValidate, NodeGenerateFallbackSQL, NodeFormatResults, NodeError},
	NodeGenerateFallbackSQL: {NodeValidate, NodeFormatResults, NodeError},
	NodeFormatResults:       {},
	NodeError:               {},
}

// NodeRejectedExit is the synthetic successor declared for await_approval's
// rejection exit. It is not a Node in the pipeline (no function implements
// it) and no node routes to it: await_approval ends a rejected query by
// returning Terminal(), and the engine does not reference this constant.
const NodeRejectedExit NodeName = "rejected"

// checkRouting rejects an undeclared transition. Called by the engine after
// every node execution, and exercised standalone by the routing-table
// closure self-test.
func checkRouting(from, to NodeName) error {
	successors, ok := routingTable[from]
	if !ok {
		return fmt.Errorf("orchestrator: node %q has no routing table entry", from)
	}
	for _, s := range successors {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("orchestrator: illegal transition %q -> %q (not in declared successor set %v)", from, to, successors)
}

// probeSQLAllowed returns whether the static graph permits entering
// probe_sql at all for this query (Oracle-only per spec.md §4.1's tie-break
// rule; the actual skip decision based on SQL shape lives in probe.go).
func probeSQLAllowed(dbType DatabaseType) bool {
	return dbType == DatabaseOracle
}
