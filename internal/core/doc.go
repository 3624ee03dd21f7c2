// Package core provides the reconciliation matching engine.
//
// This package holds all matching logic independent of any transport or
// storage. It can be driven by the web handlers, a CLI, or tests without
// modification.
//
// # Architecture
//
//   - Source Registry: candidate views are registered at init time using
//     [Register]. Each [SourceDefinition] names the document kind and the
//     relational view a [CandidateProvider] reads.
//   - Engine: [Engine.Suggest] scans every source reachable from an
//     anchor's kind concurrently, scores each candidate and returns a
//     ranked, capped list. [Engine.SuggestPO] performs 3-way matching of a
//     purchase invoice against open purchase order lines.
//   - Resolver: [Resolver.Resolve] merges global, vendor and project
//     tolerance scopes field by field, with a per-request override on top.
//   - Service: [Service] times and classifies each request, records the
//     latency sample and emits the audit event.
//
// # Routing
//
// A bank movement is matched against purchase invoices, sales invoices,
// expenses, payroll slips and tax filings. Every other kind is matched
// against bank movements.
//
// # Scoring
//
// [RuleScorer] is the default:
//
//	amount within absolute tolerance     +70
//	amount within relative tolerance     +50 (relative to the anchor amount)
//	same calendar date                   +20
//	within the days window               +10
//	anchor reference found in candidate  +10
//
// [AssistedScorer] (mode "assisted") adds counterparty identity signals:
// RUT match, learned aliases and fuzzy name similarity, plus folio,
// project and keyword evidence. Both clamp to [0,100] and only positive
// scores are returned.
//
// # Error Handling
//
// A missing candidate view ([ErrSourceUnavailable]) yields zero candidates
// from that source. A missing global tolerance row is a configuration
// error ([ErrMissingGlobalScope]). Invalid anchors fail with a
// [ValidationError] before any source is read. [MapError] converts errors
// to user-facing messages with support codes.
package core
