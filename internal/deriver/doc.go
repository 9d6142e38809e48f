// Package deriver runs the background queue that turns stored blobs
// into their derived artifacts. Every upload enqueues one job; workers
// claim jobs, render the thumbnail, and for video extract embedded
// subtitle tracks. Failed jobs retry a bounded number of times and
// jobs interrupted by a restart are requeued at startup.
package deriver
