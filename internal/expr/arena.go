package expr

// stringArena interns short strings returned from JS style/filter
// evaluation into fixed length-class slots with reference counting, so
// that repeated accesses across style functions for the same feature
// don't reallocate. It is thread-local, one per Engine/worker.
type stringArena struct {
	classes [len(arenaLengthClasses)]map[string]*arenaEntry
}

type arenaEntry struct {
	value    string
	refCount int32
}

// arenaLengthClasses are the arena's slot sizes: 8/32/128-byte slots. A
// string longer than the largest class bypasses the arena.
var arenaLengthClasses = [3]int{8, 32, 128}

func newStringArena() *stringArena {
	a := &stringArena{}
	for i := range a.classes {
		a.classes[i] = make(map[string]*arenaEntry, 64)
	}
	return a
}

func classFor(n int) (int, bool) {
	for i, size := range arenaLengthClasses {
		if n <= size {
			return i, true
		}
	}
	return 0, false
}

// Intern returns a shared copy of s, incrementing its reference count. A
// string outside every length class is returned unchanged (no sharing).
func (a *stringArena) Intern(s string) string {
	class, ok := classFor(len(s))
	if !ok {
		return s
	}
	bucket := a.classes[class]
	if e, found := bucket[s]; found {
		e.refCount++
		return e.value
	}
	e := &arenaEntry{value: s, refCount: 1}
	bucket[s] = e
	return e.value
}

// Release decrements s's reference count and evicts it once it reaches
// zero. Called when a per-feature scope that held an interned string
// pointer ends, as part of the scope-marker reset between features.
func (a *stringArena) Release(s string) {
	class, ok := classFor(len(s))
	if !ok {
		return
	}
	bucket := a.classes[class]
	e, found := bucket[s]
	if !found {
		return
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(bucket, s)
	}
}

// Reset clears every class. Used between tiles, not between features
// (per-feature state is released incrementally via Release).
func (a *stringArena) Reset() {
	for i := range a.classes {
		for k := range a.classes[i] {
			delete(a.classes[i], k)
		}
	}
}
