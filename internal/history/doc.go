// Package history persists finished optimization runs in SQLite so past
// results can be listed and inspected from the CLI.
package history
