// Package engine is the host-facing API of the rule matcher.
//
// An Engine owns every buffer derived from a catalog: the fact store, the
// string table, the sorted rules and the scan result. It moves through an
// explicit lifecycle:
//
//	Uninitialized --Init--> Ready --Reload--> Reloading --> Ready --Dispose--> Disposed
//
// Queries (Peek*, Pick*, Get/Set, Bucket, name lookups) only act in Ready.
// In any other state they return zero values without touching buffers, so a
// caller racing a reload sees an empty answer rather than torn state.
//
// Peek scores a rule range and leaves facts alone. Pick scores the same way,
// then applies the write-backs of every selected rule in order and notifies
// OnRulePicked listeners. Scanning and write-back never interleave: the
// scan completes before the first write.
//
// All entry points are serialized by one mutex. Listeners run after the
// mutex is released and may call back into the engine.
package engine
