// Package scheduler triggers one job on a cron or interval schedule.
//
// Runs never overlap: a trigger that fires while the previous run is still
// in flight is skipped and counted.
package scheduler
