// Package notify delivers user-facing messages from the claim scheduler to
// the chat transport, with shared rate limiting and bounded retries.
package notify
