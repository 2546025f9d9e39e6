// Package terminal adapts the local TTY to the connection machine: it
// reports the window size, writes server output, switches the TTY into raw
// mode, debounces resize signals and keeps the optional session log.
package terminal
