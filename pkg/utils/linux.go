//go:build linux

package utils

import (
	"github.com/nestor-run/nestor/pkg/log"
	"golang.org/x/sys/unix"
)

// Become a child subreaper so that orphaned descendants of nested
// containers are reparented to the executor instead of init.
func EnableChildSubreaper() {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		log.Warn("Failed to enable child subreaper:", err)
	}
}
