package model

import "sort"

// Property is a single (key, value) pair. Properties are kept sorted by
// key so lookup can binary-search; this is a hot path exercised once per
// feature per filter/style evaluation.
type Property struct {
	Key   string
	Value Value
}

// Properties is an ordered, key-sorted sequence of Property pairs.
// Duplicate keys collapse to the last write.
type Properties struct {
	items []Property
}

// NewProperties builds a Properties from unsorted pairs, sorting and
// de-duplicating (last write wins) in one pass.
func NewProperties(pairs ...Property) Properties {
	p := Properties{items: append([]Property(nil), pairs...)}
	p.sortAndDedup()
	return p
}

func (p *Properties) sortAndDedup() {
	sort.SliceStable(p.items, func(i, j int) bool { return p.items[i].Key < p.items[j].Key })
	out := p.items[:0]
	for _, it := range p.items {
		if n := len(out); n > 0 && out[n-1].Key == it.Key {
			out[n-1] = it // last write wins
			continue
		}
		out = append(out, it)
	}
	p.items = out
}

// Len reports the number of distinct keys.
func (p Properties) Len() int { return len(p.items) }

// At returns the i-th pair in key order.
func (p Properties) At(i int) Property { return p.items[i] }

// search does the binary search shared by Get/Contains/Set.
func (p Properties) search(key string) (int, bool) {
	i := sort.Search(len(p.items), func(i int) bool { return p.items[i].Key >= key })
	if i < len(p.items) && p.items[i].Key == key {
		return i, true
	}
	return i, false
}

// Get returns the value for key, or None with ok=false if absent.
func (p Properties) Get(key string) (Value, bool) {
	i, found := p.search(key)
	if !found {
		return None(), false
	}
	return p.items[i].Value, true
}

// Contains reports whether key is present.
func (p Properties) Contains(key string) bool {
	_, found := p.search(key)
	return found
}

// Set inserts or overwrites key's value, maintaining sort order.
func (p *Properties) Set(key string, v Value) {
	i, found := p.search(key)
	if found {
		p.items[i].Value = v
		return
	}
	p.items = append(p.items, Property{})
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = Property{Key: key, Value: v}
}

// Pairs returns the underlying pairs in key order. Callers must not
// mutate the returned slice.
func (p Properties) Pairs() []Property { return p.items }

// PropertiesBuilder accumulates pairs in arbitrary order and sorts once on Build —
// an insertion-sort-on-build mode suited to decoders that discover keys
// incrementally.
type PropertiesBuilder struct {
	items []Property
}

// Add appends a pair without maintaining order; duplicate keys are
// resolved (last write wins) by Build.
func (b *PropertiesBuilder) Add(key string, v Value) {
	b.items = append(b.items, Property{Key: key, Value: v})
}

// Build finalizes the accumulated pairs into a sorted Properties.
func (b *PropertiesBuilder) Build() Properties {
	p := Properties{items: b.items}
	p.sortAndDedup()
	return p
}
