// Package breaker implements a per-dependency circuit breaker.
//
// A breaker watches the outcomes of the last WindowSize calls. Once at least
// MinimumCalls are recorded and the failure rate reaches
// FailureRateThreshold it opens, and calls are refused until CoolDown has
// passed. The first call after that is a trial: if it succeeds the breaker
// closes with an empty window, if it fails the breaker opens again.
//
//	CLOSED ──rate >= threshold──► OPEN ──cool-down elapsed──► HALF_OPEN
//	   ▲                           ▲                              │
//	   └────── trial succeeded ────┼──────────────────────────────┤
//	                               └─────── trial failed ─────────┘
//
// Breakers are created lazily, one per caller/dependency pair, by a Registry
// built at startup.
package breaker
