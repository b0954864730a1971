package lib

import "strings"
import "unsafe"

// Parsecsv convert a string of comma separated values into list of
// string of values.
func Parsecsv(input string) []string {
	if input == "" {
		return nil
	}
	ss := strings.Split(input, ",")
	outs := make([]string, 0)
	for _, s := range ss {
		s = strings.Trim(s, " \t\r\n")
		if s == "" {
			continue
		}
		outs = append(outs, s)
	}
	return outs
}

// Memcpy copy memory block of length `ln` from `src` to `dst`. This
// function is useful if memory block is obtained outside golang
// runtime.
func Memcpy(dst, src unsafe.Pointer, ln int) int {
	return copy(unsafe.Slice((*byte)(dst), ln), unsafe.Slice((*byte)(src), ln))
}

// Memzero fill memory block of length `ln` with zeros.
func Memzero(block unsafe.Pointer, ln int) {
	dst := unsafe.Slice((*byte)(block), ln)
	for i := range dst {
		dst[i] = 0
	}
}

// AlignUp round `n` up to the nearest multiple of `align`, where
// `align` shall be a power of 2.
func AlignUp(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}

// Ceil divide and round up.
func Ceil(divident, divisor int64) int64 {
	if divident%divisor == 0 {
		return divident / divisor
	}
	return (divident / divisor) + 1
}

// Ispowerof2 check whether n is an exact power of 2.
func Ispowerof2(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}
