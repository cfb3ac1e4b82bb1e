// Package services defines the shared error taxonomy for the optimizer.
//
// Errors produced by stages and tool invocations are tagged with sentinel
// markers so the orchestrator can decide between aborting the run (security
// and input validation failures) and absorbing the failure locally
// (tool, timeout, and IO problems inside a stage). SafeMessage guarantees
// user-facing text never leaks filesystem paths.
package services
