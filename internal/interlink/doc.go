// Package interlink implements the HTTP client for the Interlink rewards API
// and the error classification the auto-claim scheduler bases its backoff and
// termination decisions on.
package interlink
