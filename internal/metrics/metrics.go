// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint
// when net/http/pprof is imported in the main binary.
package metrics

import "expvar"

// Operation counters.
var (
	UtterancesTotal      = expvar.NewInt("voicegraph_utterances_total")
	FactsExtracted       = expvar.NewInt("voicegraph_facts_extracted_total")
	FactsAutoCommitted   = expvar.NewInt("voicegraph_facts_auto_committed_total")
	FactsRejected        = expvar.NewInt("voicegraph_facts_rejected_total")
	ConfirmationsQueued  = expvar.NewInt("voicegraph_confirmations_queued_total")
	ConfirmationsMerged  = expvar.NewInt("voicegraph_confirmations_merged_total")
	ConfirmationsExpired = expvar.NewInt("voicegraph_confirmations_expired_total")
	CommitRetries        = expvar.NewInt("voicegraph_commit_retries_total")
	FastPathFailures     = expvar.NewInt("voicegraph_fastpath_failures_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
