package slab

// Sub-LRU bits OR'd onto a user-supplied numeric class id, per spec.md §6:
// "each id is expanded into four sub-classes". tempuscache doesn't
// implement memcached's segmented-LRU promotion logic, but it keeps the
// same bit layout so the crawl command grammar round-trips unchanged.
const (
	ClassBits  = 6 // low bits hold the base slab class id
	ClassMask  = 1<<ClassBits - 1
	TempLRU    = 1 << (ClassBits + 0)
	HotLRU     = 1 << (ClassBits + 1)
	WarmLRU    = 1 << (ClassBits + 2)
	ColdLRU    = 1 << (ClassBits + 3)
	AllSubLRUs = TempLRU | HotLRU | WarmLRU | ColdLRU
)

// MaxClasses bounds the number of base slab classes (spec.md's
// POWER_LARGEST) and sizes the class/sentinel arrays the crawler
// iterates. Class and Sentinel look ids up modulo MaxClasses, so the four
// sub-LRU ids Expand yields for a base id all resolve to that base id's
// single class and sentinel.
const MaxClasses = 64

// Expand ORs a base class id with every sub-LRU bit, yielding the set of
// concrete class ids a "numeric class" crawl request targets.
func Expand(base uint8) []uint16 {
	b := uint16(base) & ClassMask
	return []uint16{b | TempLRU, b | HotLRU, b | WarmLRU, b | ColdLRU}
}

// Classes owns one class per base slab id plus the sentinel the crawler
// parks in each one; expanded (sub-LRU) ids share their base id's slot.
type Classes struct {
	classes   [MaxClasses]*Class
	sentinels [MaxClasses]*Sentinel
}

// NewClasses allocates all classes and their sentinels up front; unused
// classes simply stay empty, matching the teacher's "allocate once, reuse"
// posture from its functional-options constructor.
func NewClasses() *Classes {
	cs := &Classes{}
	for i := range cs.classes {
		cs.classes[i] = NewClass(uint8(i))
		cs.sentinels[i] = &Sentinel{}
	}
	return cs
}

func (cs *Classes) Class(id uint16) *Class {
	return cs.classes[int(id)%MaxClasses]
}

func (cs *Classes) Sentinel(id uint16) *Sentinel {
	return cs.sentinels[int(id)%MaxClasses]
}

// NumClasses reports how many class slots exist (used to size bitmaps).
func (cs *Classes) NumClasses() int {
	return len(cs.classes)
}
