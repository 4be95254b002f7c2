// Package scheduler runs the poll loop: every tick it reloads the job list,
// dispatches due jobs one at a time through the executor and records each as
// executed before moving on.
//
// The tick cadence comes from a schedule string (see ParseSchedule); the loop
// waits for the next trigger only after a scan has fully finished.
package scheduler
