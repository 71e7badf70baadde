// Package locator finds the next case-insensitive occurrence of a byte in a
// candidate string. Two strategies are provided: a 16-byte block scan and a
// byte-by-byte scan. They return identical results for every input.
//
// Folding is byte-level: only 'A'..'Z' are lowered. Multi-byte UTF-8
// sequences are compared byte for byte.
package locator

// Match is a located occurrence of a pattern byte.
type Match struct {
	Pos       int
	WordStart bool
}

// Locator returns the lowest index >= from whose folded byte equals the
// folded pattern.
type Locator interface {
	Locate(pattern byte, text string, from int) (Match, bool)
}

// Fold lowers ASCII capitals and passes every other byte through.
func Fold(b byte) byte {
	if b-'A' < 26 {
		return b + 0x20
	}
	return b
}

func isWordStart(text string, pos int) bool {
	return pos == 0 || text[pos-1] == ' '
}

// Scalar scans one byte at a time.
type Scalar struct{}

func (Scalar) Locate(pattern byte, text string, from int) (Match, bool) {
	if from < 0 {
		from = 0
	}
	p := Fold(pattern)
	for i := from; i < len(text); i++ {
		if Fold(text[i]) == p {
			return Match{Pos: i, WordStart: isWordStart(text, i)}, true
		}
	}
	return Match{}, false
}
