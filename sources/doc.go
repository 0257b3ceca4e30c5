// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package sources provides HTTP adapters for the two external signal sources
consulted during reconciliation.

  - SearchIndexSource queries partial status documents for one pipeline from
    an Elasticsearch/OpenSearch compatible _search endpoint. Calls are rate
    limited (golang.org/x/time/rate), retried on transient failures and
    guarded by a circuit breaker.
  - OrchestratorSource fetches every continuous activity of a project in one
    bulk call from the orchestrator node serving the active environment.

All failures are returned as *types.Error with a SOURCE_* code. Transport
errors, 429 and 5xx responses are retryable; other 4xx responses are not and
do not count toward the breaker.
*/
package sources
