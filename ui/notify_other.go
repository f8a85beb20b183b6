//go:build !linux

package ui

import (
	"github.com/gen2brain/beeep"
)

// Notify raises a desktop notification.
func Notify(title, content string) error {
	return beeep.Notify(title, content, "")
}
