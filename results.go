package storesearch

import (
	"slices"
	"strings"
)

// ByName orders records by Name, byte-wise ascending, so "Apple" sorts
// before "Zebra" and both before "apple".
func ByName(a, b Record) int {
	return strings.Compare(a.Name, b.Name)
}

// SortByName sorts records in place with ByName. The sort is not stable:
// records with equal names end up in an unspecified relative order.
func SortByName(records []Record) {
	slices.SortFunc(records, ByName)
}
