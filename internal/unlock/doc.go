// Package unlock drives one browser session through the unlock web service
// for each locked file in a batch.
//
// Files are processed sequentially. For each one the orchestrator snapshots
// the download directory, submits the file, polls for a settled artifact
// that was not there before, and hands it to the reconciler. Every job ends
// succeeded, failed, or timed_out; failures never stop the batch.
package unlock
