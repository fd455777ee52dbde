// Package export writes epoch sets to disk.
//
// Each channel of each input becomes one artifact per requested format:
//
//	<stem>_ch<N>.atf   Axon Text File, a time column plus one column per epoch
//	<stem>_ch<N>.csv   the same matrix as comma-separated values
//	<stem>_ch<N>.npz   NumPy archive with epochs, time, event_times and mean
//
// and each input gets a JSON report, <stem>_summary.json. Batches write a
// batch summary through WriteBatchSummary.
//
// Every file is written to a temporary name in the destination directory
// and renamed into place, so readers never observe a partial artifact.
package export
