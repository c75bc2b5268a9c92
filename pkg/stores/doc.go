// Package stores provides the run journal: an SQLite database recording
// every script run and the outcome of each of its actions.
package stores
