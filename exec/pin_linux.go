//go:build linux

package exec

import "golang.org/x/sys/unix"

// pincpu bind the calling OS thread to one cpu. The caller shall
// have locked the goroutine to its thread already.
func pincpu(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

// ostid the OS thread id of the calling thread, the key workers
// register their logical worker-id under.
func ostid() int {
	return unix.Gettid()
}
