package malloc

import "fmt"

// Alignment all pointers returned by heaps in this package are
// aligned to Alignment bytes.
const Alignment = int64(8)

// Pagesize default size of pages served by the page source.
const Pagesize = int64(2 * 1024 * 1024)

// Subpagesize granularity at which fresh pages are touched to commit
// physical memory.
const Subpagesize = int64(4096)

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
