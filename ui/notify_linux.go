//go:build linux

package ui

import (
	"github.com/gen2brain/beeep"
	"github.com/godbus/dbus/v5"
)

func notifyDBus(title, content string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}
	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	return obj.Call("org.freedesktop.Notifications.Notify", 0, "polychat", uint32(0), "", title, content, []string{}, map[string]dbus.Variant{
		"category":      dbus.MakeVariant("im.received"),
		"desktop-entry": dbus.MakeVariant("polychat"),
		"urgency":       dbus.MakeVariant(uint8(1)), // Normal
	}, int32(-1)).Err
}

// Notify raises a desktop notification. It may block on the session bus,
// so it is best called from its own goroutine.
func Notify(title, content string) error {
	if err := notifyDBus(title, content); err == nil {
		return nil
	}
	return beeep.Notify(title, content, "")
}
