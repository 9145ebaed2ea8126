// Package app is the composition root: it builds the config manager,
// logging, Telegram transport, storage, the rewards client and the claim
// scheduler, and drives their startup and bounded shutdown.
package app
