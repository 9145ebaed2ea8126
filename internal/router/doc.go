// Package router maps chat commands and inline menu callbacks onto the
// auto-claim service and renders the results as Telegram HTML.
package router
