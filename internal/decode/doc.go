// Package decode converts raw sheet tables into scene candidates.
//
// A Strategy resolves one ColumnMapping per sheet: KeywordStrategy infers
// column roles from header text, FixedStrategy uses configured indices.
// The Decoder then reads each row through that mapping, tolerating ragged
// rows, and reports row counts through Stats instead of failing.
package decode
