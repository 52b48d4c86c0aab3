// Package cnj normalizes Brazilian unified (CNJ) process numbers into the
// forms the e-SAJ portal expects.
//
// A full CNJ number has 20 digits, NNNNNNN-DD.AAAA.J.TR.OOOO. The portal's
// search form takes the number without the J.TR segment ("826" for TJSP),
// which leaves a 17-digit query form; the forum code is its last four digits.
package cnj

import (
	"strings"

	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
)

const (
	// FullWidth is the digit count of a complete CNJ number.
	FullWidth = 20
	// QueryWidth is the digit count once the J.TR segment is removed.
	QueryWidth = 17
	// DefaultInfix is the J.TR segment of the São Paulo state court.
	DefaultInfix = "826"

	infixOffset = 13
)

// ID is a normalized process identifier.
type ID struct {
	// Raw is the input with surrounding tabs and spaces removed.
	Raw string
	// Digits is the full 20-digit CNJ number.
	Digits string
	// Query is Digits with the J.TR segment removed.
	Query string
	// Display is the punctuated CNJ number.
	Display string
	// Forum is the last four characters of Query.
	Forum string
}

// Normalizer turns raw identifiers into IDs for one court segment.
type Normalizer struct {
	Infix string
}

// Default normalizes TJSP numbers.
var Default = Normalizer{Infix: DefaultInfix}

// Normalize normalizes raw with the TJSP infix.
func Normalize(raw string) (ID, error) {
	return Default.Normalize(raw)
}

// Normalize accepts either a full CNJ number (punctuated or not) or an
// already-normalized 17-digit query form. The infix is removed at its fixed
// position in the CNJ layout, never anywhere else in the string.
func (n Normalizer) Normalize(raw string) (ID, error) {
	infix := n.Infix
	if infix == "" {
		infix = DefaultInfix
	}
	if len(infix) != 3 {
		return ID{}, &jrerrors.MalformedIDError{Raw: raw, Reason: "court segment must have 3 digits"}
	}

	trimmed := strings.Trim(raw, "\t \r\n")
	digits, ok := digitsOnly(trimmed)
	if !ok {
		return ID{}, &jrerrors.MalformedIDError{Raw: raw, Reason: "unexpected characters"}
	}

	var full, query string
	switch len(digits) {
	case FullWidth:
		if digits[infixOffset:infixOffset+3] != infix {
			return ID{}, &jrerrors.MalformedIDError{
				Raw:    raw,
				Reason: "court segment " + digits[infixOffset:infixOffset+3] + " does not match " + infix,
			}
		}
		full = digits
		query = digits[:infixOffset] + digits[infixOffset+3:]
	case QueryWidth:
		query = digits
		full = digits[:infixOffset] + infix + digits[infixOffset:]
	default:
		if len(digits) < QueryWidth {
			return ID{}, &jrerrors.MalformedIDError{Raw: raw, Reason: "too short"}
		}
		return ID{}, &jrerrors.MalformedIDError{Raw: raw, Reason: "unexpected length"}
	}

	return ID{
		Raw:     trimmed,
		Digits:  full,
		Query:   query,
		Display: format(query, infix),
		Forum:   query[len(query)-4:],
	}, nil
}

// format renders NNNNNNN-DD.AAAA.J.TR.OOOO from a query form.
func format(q, infix string) string {
	var b strings.Builder
	b.Grow(FullWidth + 5)
	b.WriteString(q[:7])
	b.WriteByte('-')
	b.WriteString(q[7:9])
	b.WriteByte('.')
	b.WriteString(q[9:13])
	b.WriteByte('.')
	b.WriteString(infix[:1])
	b.WriteByte('.')
	b.WriteString(infix[1:])
	b.WriteByte('.')
	b.WriteString(q[13:])
	return b.String()
}

// digitsOnly drops CNJ punctuation and reports false on anything else.
func digitsOnly(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '.' || r == ' ':
		default:
			return "", false
		}
	}
	return b.String(), true
}
