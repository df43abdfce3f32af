package model

import "strings"

// BadRow is a rejected input row with the reasons it was rejected.
type BadRow struct {
	Fields FieldSet
	Raw    RawRow
	Errors []string
	Line   int
}

// Reason joins the row's error strings.
func (b BadRow) Reason() string {
	return strings.Join(b.Errors, "; ")
}
