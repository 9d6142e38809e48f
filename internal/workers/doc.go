// Package workers calculates worker pool sizes based on available CPUs,
// with an environment override for manual tuning.
package workers
