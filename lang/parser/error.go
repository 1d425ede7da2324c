package parser

import (
	"fmt"
	"slices"
	"strings"
)

// Error reports that the source did not match the grammar. It carries
// the position of the failure, the rule that was being matched, and
// the set of terminals that would have been accepted at that point.
//
// The parser keeps only the failure farthest into the input: for a
// recursive descent that is the position the user actually needs, and
// expected sets from alternatives failing at the same offset are
// merged.
type Error struct {
	Pos      Position
	Rule     Rule
	Expected []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	exp := slices.Clone(e.Expected)
	slices.Sort(exp)
	exp = slices.Compact(exp)

	return fmt.Sprintf(
		"%d:%d: syntax error in %s: expected %s",
		e.Pos.Line, e.Pos.Column, e.Rule, strings.Join(exp, ", "),
	)
}

// merge folds another failure into the receiver, keeping whichever is
// farther and unioning expected sets at equal offsets.
func (e *Error) merge(other *Error) *Error {
	if e == nil {
		return other
	}

	if other == nil || other.Pos.Offset < e.Pos.Offset {
		return e
	}

	if other.Pos.Offset > e.Pos.Offset {
		return other
	}

	e.Expected = append(e.Expected, other.Expected...)

	return e
}
