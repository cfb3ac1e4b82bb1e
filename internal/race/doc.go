// Package race runs competing geometry-compression methods in parallel and
// keeps the smallest successful result.
package race
