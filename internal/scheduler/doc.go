package scheduler

// Package scheduler admits tasks in FIFO order under a live parallelism limit,
// drives each admitted task through its external tool, and maps the tool's
// events onto the task records held in the store.
//
// A Scheduler is safe for concurrent use. Tools may deliver events from any
// goroutine, including synchronously from inside Tool.Start.
