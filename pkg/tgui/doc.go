// Package tgui holds small helpers for Telegram-facing text: callback data
// and length limits.
package tgui
