package model

import "strings"

type AllocCategory uint8

const (
	CategoryUnknown AllocCategory = iota
	CategoryKmalloc
	CategoryKmemCache
	// CategoryTotal is the synthetic aggregate over every category. It never
	// appears on an input record.
	CategoryTotal
)

// AllocCategories lists the categories an input record may carry.
var AllocCategories = []AllocCategory{CategoryKmalloc, CategoryKmemCache}

func (c AllocCategory) String() string {
	switch c {
	case CategoryKmalloc:
		return "kmalloc"
	case CategoryKmemCache:
		return "kmem_cache"
	case CategoryTotal:
		return "total"
	default:
		return "unknown"
	}
}

func (c AllocCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseAllocCategory parses the alloc_type field of an allocation record.
func ParseAllocCategory(s string) (AllocCategory, error) {
	switch strings.ToLower(s) {
	case "kmalloc":
		return CategoryKmalloc, nil
	case "kmem_cache":
		return CategoryKmemCache, nil
	}
	return CategoryUnknown, &UnknownAllocationKindError{Field: "alloc_type", Value: s}
}

type AllocDirection uint8

const (
	DirectionUnknown AllocDirection = iota
	DirectionAlloc
	DirectionFree
)

func (d AllocDirection) String() string {
	switch d {
	case DirectionAlloc:
		return "Alloc"
	case DirectionFree:
		return "Free"
	default:
		return "Unknown"
	}
}

func (d AllocDirection) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ParseAllocDirection parses the alloc_direction field of an allocation
// record. The collector writes "Malloc" for allocations; it is accepted as
// an alias of "Alloc".
func ParseAllocDirection(s string) (AllocDirection, error) {
	switch strings.ToLower(s) {
	case "alloc", "malloc":
		return DirectionAlloc, nil
	case "free":
		return DirectionFree, nil
	}
	return DirectionUnknown, &UnknownAllocationKindError{Field: "alloc_direction", Value: s}
}

// AllocationEvent is a single kernel allocation or free.
type AllocationEvent struct {
	Category  AllocCategory  `json:"alloc_type" yaml:"alloc_type"`
	Direction AllocDirection `json:"alloc_direction" yaml:"alloc_direction"`
	Size      uint64         `json:"size" yaml:"size"`
	Timestamp int64          `json:"timestamp" yaml:"timestamp"`
}

func (e AllocationEvent) Time() int64 { return e.Timestamp }

func (e AllocationEvent) Rebase(offset int64) AllocationEvent {
	e.Timestamp -= offset
	return e
}

// Validate rejects categories and directions outside the closed enumerations.
func (e AllocationEvent) Validate() error {
	if e.Category != CategoryKmalloc && e.Category != CategoryKmemCache {
		return &UnknownAllocationKindError{Field: "alloc_type", Value: e.Category.String()}
	}
	if e.Direction != DirectionAlloc && e.Direction != DirectionFree {
		return &UnknownAllocationKindError{Field: "alloc_direction", Value: e.Direction.String()}
	}
	return nil
}
