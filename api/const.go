package api

import "errors"

// ErrorOutofMemory from the page source, when the OS rejects a new
// mapping. Surfaces unmasked through every heap layer and is fatal
// to a running iteration.
var ErrorOutofMemory = errors.New("gopar.outofmemory")

// ErrorInvalidConfig worklist or engine parameters are inconsistent,
// reported before any worker touches the component.
var ErrorInvalidConfig = errors.New("gopar.invalidconfig")

// ErrorAborted iteration was cancelled cooperatively through the
// operator context.
var ErrorAborted = errors.New("gopar.aborted")
