package malloc

import "github.com/cloudfoundry/gosigar"
import s "github.com/bnclabs/gosettings"

// Defaultsettings for the page source.
//
// "page.size" (int64, default: Pagesize)
//		Size of pages served by the page source, a power of 2.
//
// "page.prealloc" (int64, default: 0)
//		Populate the freelist with this many pages upfront,
//		clamped to half of free RAM.
//
// "numa.interleave" (bool, default: true on machines with more
// than one NUMA node)
//		Round-robin bind backing pages across NUMA nodes.
func Defaultsettings() s.Settings {
	return s.Settings{
		"page.size":       Pagesize,
		"page.prealloc":   int64(0),
		"numa.interleave": Numanodes() > 1,
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
