// Package autostart registers the application to launch at login.
//
// Linux uses an XDG autostart .desktop entry, macOS a LaunchAgent plist,
// and Windows the current user's Run registry key.
package autostart

const appName = "quotabar"
