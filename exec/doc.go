// Package exec drives parallel for-each iterations over a chunked
// worklist. An Engine owns a set of workers pinned one to a core,
// each holding a logical worker-id that indexes every per-thread
// structure in the runtime. ForEach binds a worklist to a user
// operator and runs it to quiescence, detected with a two phase
// termination protocol over atomic counters.
//
// Engines are explicitly constructed runtime objects carrying their
// own page source and sized-allocator registry, so applications and
// tests can instantiate isolated runtimes side by side.
package exec
