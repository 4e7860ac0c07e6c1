// Package pattern mines recorded observations into persisted, confidence
// scored pattern records ("instincts").
//
// Patterns are stored per mining category, one JSON document per category.
// Within a category no two records may share a structurally identical
// pattern value: re-mined candidates merge into the existing record, with
// confidence and occurrence counts that never decrease.
package pattern
