// Package pinned provides zero-copy views over values that live in a storage
// engine's own memory.
//
// A Slice is handed out by an engine read and wraps exactly one engine
// allocation. The bytes returned by Bytes alias that allocation and are only
// valid until Close is called. Close releases the allocation back to the
// engine exactly once, however many times it is called, so the usual pattern
// is:
//
//	s, err := db.GetPinned(key)
//	if err != nil {
//		return err
//	}
//	if s == nil {
//		return nil // not found
//	}
//	defer s.Close()
//	use(s.Bytes())
//
// Every Slice holds a Borrow on the Tracker of the engine that produced it.
// The engine refuses to close while borrows are outstanding, which is how a
// Slice is kept from outliving its engine. A Slice must be passed around by
// pointer; copying the struct is flagged by go vet.
package pinned
