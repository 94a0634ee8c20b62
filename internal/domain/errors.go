package domain

import "errors"

var (
	// ErrParse reports unparseable XML or a missing mandatory CAP element.
	ErrParse = errors.New("cap parse error")

	// ErrDateFormat reports a CAP date that does not reduce to YYYYMMDDHHMMSS.
	ErrDateFormat = errors.New("cap date format error")

	// ErrUnpaired reports an English alert with no French counterpart where
	// the pairing is required to hold.
	ErrUnpaired = errors.New("english alert has no french counterpart")

	// ErrDegeneratePolygon reports an area polygon that cannot form a ring.
	ErrDegeneratePolygon = errors.New("degenerate polygon")
)
