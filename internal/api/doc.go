// Package api exposes the scheduler over HTTP: task submission and control,
// the completed-task history, the live parallel limit and a websocket stream
// of task list snapshots.
package api
