// Package shoebox file: search.go
package shoebox

// SearchResult is the outcome of a binary search over a sorted slice.
// It is either Exact or Between.
type SearchResult interface {
	searchResult()
}

// Exact means an equal element sits at Index.
type Exact struct {
	Index int
}

// Between means no equal element exists. The element would sort between
// Low and High, and High is the insertion point. Low is -1 when the gap
// precedes the first element.
type Between struct {
	Low  int
	High int
}

func (Exact) searchResult()   {}
func (Between) searchResult() {}

// binarySearch locates target in the sorted slice using compare.
func binarySearch[E any](sorted []E, target E, compare func(a, b E) int) SearchResult {
	lo, hi := 0, len(sorted)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch c := compare(sorted[mid], target); {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid - 1
		default:
			return Exact{Index: mid}
		}
	}
	return Between{Low: lo - 1, High: lo}
}

// insertionPoint returns the index at which an element should be inserted.
func insertionPoint(r SearchResult) int {
	switch r := r.(type) {
	case Exact:
		return r.Index
	case Between:
		return r.High
	default:
		panic("shoebox: unknown search result")
	}
}
