// Package anchor locates fields in vendor text by literal markers.
//
// Every function is total: a missing marker is reported through the boolean
// result and never through a negative offset or a panic. Offsets are byte
// offsets into the input string.
package anchor

import "strings"

// FindNth returns the offset of the n-th non-overlapping occurrence of marker
// in text, counting from 1.
func FindNth(text, marker string, n int) (int, bool) {
	if marker == "" || n < 1 {
		return 0, false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], marker)
		if idx < 0 {
			return 0, false
		}
		n--
		if n == 0 {
			return offset + idx, true
		}
		offset += idx + len(marker)
	}
}

// Index returns the offset of the first occurrence of marker at or after from.
func Index(text, marker string, from int) (int, bool) {
	if marker == "" || from < 0 || from > len(text) {
		return 0, false
	}
	idx := strings.Index(text[from:], marker)
	if idx < 0 {
		return 0, false
	}
	return from + idx, true
}

// IndexFold is Index with ASCII case-insensitive matching.
func IndexFold(text, marker string, from int) (int, bool) {
	if marker == "" || from < 0 || from > len(text) {
		return 0, false
	}
	for i := from; i+len(marker) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(marker)], marker) {
			return i, true
		}
	}
	return 0, false
}

// SliceBetween returns the trimmed text between the end of the first start
// marker at or after from and the next end marker. An empty start marker
// begins the slice at from itself.
func SliceBetween(text, start, end string, from int) (string, bool) {
	return sliceBetween(text, start, end, from, Index)
}

// SliceBetweenFold is SliceBetween with case-insensitive markers.
func SliceBetweenFold(text, start, end string, from int) (string, bool) {
	return sliceBetween(text, start, end, from, IndexFold)
}

func sliceBetween(text, start, end string, from int, index func(string, string, int) (int, bool)) (string, bool) {
	if from < 0 || from > len(text) || end == "" {
		return "", false
	}
	begin := from
	if start != "" {
		idx, ok := index(text, start, from)
		if !ok {
			return "", false
		}
		begin = idx + len(start)
	}
	stop, ok := index(text, end, begin)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(text[begin:stop]), true
}

// Collapse joins the whitespace-separated words of s with single spaces.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
