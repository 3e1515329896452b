//go:build !linux

package utils

// Child subreapers are a linux concept. Orphaned container processes
// are reparented to init on other platforms.
func EnableChildSubreaper() {
}
