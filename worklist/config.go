package worklist

import s "github.com/bnclabs/gosettings"

// Maxchunksize largest permitted chunk capacity.
const Maxchunksize = int64(1024)

// Defaultsettings for a chunked worklist.
//
// "chunksize" (int64, default: 64)
//		Tasks per chunk, a power of 2 up to Maxchunksize.
//
// "discipline" (string, default: "fifo")
//		Pop order, can be "fifo", "lifo" or "bag". Bag promises
//		any-order semantics, implemented as lifo pop over a fifo
//		container of chunks.
//
// "distribution" (string, default: "perpkg")
//		Where published chunks live, "global" keeps one shared
//		container, "perpkg" keeps one per package so steals stay
//		inside a NUMA locality group until the group runs dry.
//
// "concurrent" (bool, default: true)
//		When false the worklist collapses to a single record and an
//		unprotected container, for single threaded use.
func Defaultsettings() s.Settings {
	return s.Settings{
		"chunksize":    int64(64),
		"discipline":   "fifo",
		"distribution": "perpkg",
		"concurrent":   true,
	}
}
