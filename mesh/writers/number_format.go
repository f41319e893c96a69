package writers

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders f as the shortest text that parses back to f, in the
// style used by VTK/Python mesh tooling: plain decimal with at least one
// fractional digit for decimal exponents in [-4, 16), scientific notation
// with a signed two digit minimum exponent otherwise.
//
//	0 -> 0.0, 1 -> 1.0, 0.1 -> 0.1, 1e-05 -> 1e-05, 1e16 -> 1e+16
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(sci, "e")
	e, _ := strconv.Atoi(exp)
	if f != 0 && (e < -4 || e >= 16) {
		return mant + "e" + exp
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
