package exec

import "errors"
import "runtime"

import "github.com/bnclabs/gopar/malloc"
import s "github.com/bnclabs/gosettings"

// ErrorClosed engine was closed.
var ErrorClosed = errors.New("gopar.closed")

// Defaultsettings for an engine, including the page source
// parameters from malloc.Defaultsettings.
//
// "numworkers" (int64, default: number of online cores)
//		Number of OS threads driving iterations.
//
// "affinity" (string, default: "")
//		Comma separated cpu indices to pin workers on, empty to pin
//		worker n on cpu n, wrapping around the online cpus.
//
// "page.size", "page.prealloc", "numa.interleave"
//		Page source parameters, see malloc.Defaultsettings. The
//		engine runs the prealloc on every worker, so "page.prealloc"
//		counts pages per worker, each request clamped against free
//		RAM.
func Defaultsettings() s.Settings {
	setts := s.Settings{
		"numworkers": int64(runtime.NumCPU()),
		"affinity":   "",
	}
	return setts.Mixin(malloc.Defaultsettings())
}
