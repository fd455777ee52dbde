// Package batch processes many recordings with a bounded worker pool.
//
// Inputs are discovered from glob patterns, deduplicated and sorted, and
// each becomes a Job with a collision-free output stem. Workers pull jobs
// from a channel and report on a result channel; a failing or panicking
// job is recorded and never stops the others. Canceling the context stops
// dispatch: jobs already running finish, the rest are marked Canceled.
//
// The Result lists jobs in discovery order regardless of completion order.
package batch
