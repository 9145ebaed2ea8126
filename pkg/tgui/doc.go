// Package tgui provides small Telegram UI helpers: an inline keyboard
// builder, callback data packing and HTML-safe text composition for
// ParseMode="HTML".
package tgui
