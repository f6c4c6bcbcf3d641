// Package list implements a circular, doubly linked, intrusive list.
//
// An Item is embedded in the struct that owns it. A list head is an
// Item whose links point back to itself when the list is empty. The
// list never allocates or frees anything: it only rewires links, and
// the owner pointer is a plain back-reference that the list never
// dereferences.
//
// None of the operations are safe for concurrent use. Callers
// serialize access themselves (the kernel does so by disabling
// interrupts).
package list

// Item is a node of a circular doubly linked list.
type Item[T any] struct {
	next  *Item[T]
	prev  *Item[T]
	owner *T
}

// Init records the struct that embeds l and resets l to an empty
// ring.
func (l *Item[T]) Init(owner *T) {
	l.owner = owner
	l.Reset()
}

// Owner returns the struct that embeds l, or nil for a bare list
// head.
func (l *Item[T]) Owner() *T {
	return l.owner
}

// Reset makes l a valid empty ring.
func (l *Item[T]) Reset() {
	l.next = l
	l.prev = l
}

// IsEmpty reports whether both links of l point to l itself. For an
// entry (rather than a head) this means it is not linked anywhere,
// provided it was reset after removal.
func (l *Item[T]) IsEmpty() bool {
	return l.next == l && l.prev == l
}

// Next returns the item after l.
func (l *Item[T]) Next() *Item[T] {
	return l.next
}

// Prev returns the item before l.
func (l *Item[T]) Prev() *Item[T] {
	return l.prev
}

// AddHead inserts entry right after l. The entry must not be linked
// into any other list.
func (l *Item[T]) AddHead(entry *Item[T]) {
	insert(entry, l, l.next)
}

// AddTail inserts entry right before l. When l is a list head this
// appends to the list; when l is an entry, it inserts entry in front
// of it. The entry must not be linked into any other list.
func (l *Item[T]) AddTail(entry *Item[T]) {
	insert(entry, l.prev, l)
}

// RemoveHead unlinks and returns the first entry of l, or nil if l is
// empty.
func (l *Item[T]) RemoveHead() *Item[T] {
	if l.IsEmpty() {
		return nil
	}
	entry := l.next
	entry.RemoveEntry()
	return entry
}

// RemoveTail unlinks and returns the last entry of l, or nil if l is
// empty.
func (l *Item[T]) RemoveTail() *Item[T] {
	if l.IsEmpty() {
		return nil
	}
	entry := l.prev
	entry.RemoveEntry()
	return entry
}

// RemoveEntry unlinks l from whatever list it is in. The links of
// l itself are left as they were; call Reset before using it as a
// list head again.
func (l *Item[T]) RemoveEntry() {
	l.prev.next = l.next
	l.next.prev = l.prev
}

// Contains reports whether entry is linked into l.
//
// NOTE: This is an O(n) operation meant for assertions.
func (l *Item[T]) Contains(entry *Item[T]) bool {
	for pos := l.next; pos != l; pos = pos.next {
		if pos == entry {
			return true
		}
	}
	return false
}

// Len returns the number of entries in l.
//
// NOTE: This is an O(n) operation.
func (l *Item[T]) Len() (n int) {
	for pos := l.next; pos != l; pos = pos.next {
		n++
	}
	return n
}

// ForEach calls fn for every entry of l from head to tail until fn
// returns false. The visited entry may be removed by fn.
func (l *Item[T]) ForEach(fn func(*Item[T]) bool) {
	for pos, n := l.next, l.next.next; pos != l; pos, n = n, n.next {
		if !fn(pos) {
			return
		}
	}
}

func insert[T any](entry, prev, next *Item[T]) {
	next.prev = entry
	entry.next = next
	entry.prev = prev
	prev.next = entry
}
