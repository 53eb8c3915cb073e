package slices

// RemoveInPlace removes all elements from a slice that match the given predicate.
// The predicate receives the element's position in the original slice.
// Does not allocate a new slice.
func RemoveInPlace[T any](collection []T, predicate func(T, int) bool) []T {
	i := 0
	for j, x := range collection {
		if !predicate(x, j) {
			collection[i] = x
			i++
		}
	}
	return collection[:i]
}

// Runs splits the positions of a sorted sequence into maximal runs where
// every element is adjacent to its predecessor. It returns the half-open
// [start, end) bounds of each run.
func Runs[T any](collection []T, adjacent func(prev, next T) bool) [][2]int {
	if len(collection) == 0 {
		return nil
	}
	var runs [][2]int
	start := 0
	for i := 1; i < len(collection); i++ {
		if !adjacent(collection[i-1], collection[i]) {
			runs = append(runs, [2]int{start, i})
			start = i
		}
	}
	return append(runs, [2]int{start, len(collection)})
}
