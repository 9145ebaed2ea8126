// Package autoclaim runs one background scheduler goroutine per user that
// periodically checks claim eligibility against the rewards API, submits
// claims when a window opens and backs off adaptively otherwise. The
// registry tracks running loops against the persisted per-user flag, and the
// service exposes the synchronous command surface.
package autoclaim
