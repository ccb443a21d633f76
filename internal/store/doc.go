// Package store persists users, tasks and schedule configuration.
//
// The scheduler consumes this package through small read-only interfaces
// (scheduler.TaskSource, ScheduleSource, UserSource); the SQLite backend
// implements all of them plus the write API used by the command surface.
package store
