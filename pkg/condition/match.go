package condition

import (
	"fmt"
	"strings"
)

// hasGlobMeta reports whether a comparison value contains glob
// metacharacters and therefore compares as a pattern, not a literal.
func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// checkPattern validates pattern syntax without matching anything.
func checkPattern(pattern string) error {
	_, err := compile(pattern)
	return err
}

// Match reports whether the whole of s matches the shell-style pattern:
// "*" matches any run of characters, "?" any single character, and
// "[...]" a character class with ranges and "!"/"^" negation.  Unlike
// path.Match there is no separator special-casing; "*" crosses every
// character, which is what a tag comparison in a shell test would do.
func Match(pattern, s string) (bool, error) {
	ops, err := compile(pattern)
	if err != nil {
		return false, err
	}
	return matchFrom(ops, 0, []rune(s), 0), nil
}

type opKind int

const (
	opLiteral opKind = iota
	opAny            // ?
	opStar           // *
	opClass          // [...]
)

type matchOp struct {
	kind  opKind
	lit   rune
	class *charClass
}

type charClass struct {
	negated bool
	ranges  [][2]rune
}

func (c *charClass) match(r rune) bool {
	for _, rng := range c.ranges {
		if rng[0] <= r && r <= rng[1] {
			return !c.negated
		}
	}
	return c.negated
}

func compile(pattern string) ([]matchOp, error) {
	runes := []rune(pattern)
	var ops []matchOp
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*':
			ops = append(ops, matchOp{kind: opStar})
		case '?':
			ops = append(ops, matchOp{kind: opAny})
		case '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("trailing backslash")
			}
			i++
			ops = append(ops, matchOp{kind: opLiteral, lit: runes[i]})
		case '[':
			class, width, err := compileClass(runes[i+1:])
			if err != nil {
				return nil, err
			}
			i += width
			ops = append(ops, matchOp{kind: opClass, class: class})
		default:
			ops = append(ops, matchOp{kind: opLiteral, lit: r})
		}
	}
	return ops, nil
}

// compileClass parses the remainder of a "[...]" class (runes holds
// everything after the opening bracket) and returns how many runes it
// consumed, including the closing bracket.
func compileClass(runes []rune) (*charClass, int, error) {
	class := &charClass{}
	i := 0
	if i < len(runes) && (runes[i] == '!' || runes[i] == '^') {
		class.negated = true
		i++
	}
	// A "]" in the first position is a literal member, not the closer.
	first := true
	for {
		if i >= len(runes) {
			return nil, 0, fmt.Errorf("unterminated character class")
		}
		if runes[i] == ']' && !first {
			return class, i + 1, nil
		}
		first = false
		lo := runes[i]
		if lo == '\\' {
			if i+1 >= len(runes) {
				return nil, 0, fmt.Errorf("unterminated character class")
			}
			i++
			lo = runes[i]
		}
		hi := lo
		if i+2 < len(runes) && runes[i+1] == '-' && runes[i+2] != ']' {
			hi = runes[i+2]
			i += 2
			if hi < lo {
				return nil, 0, fmt.Errorf("inverted range %q-%q in character class", lo, hi)
			}
		}
		class.ranges = append(class.ranges, [2]rune{lo, hi})
		i++
	}
}

func matchFrom(ops []matchOp, oi int, s []rune, si int) bool {
	for oi < len(ops) {
		switch o := ops[oi]; o.kind {
		case opStar:
			for oi+1 < len(ops) && ops[oi+1].kind == opStar {
				oi++
			}
			if oi == len(ops)-1 {
				return true
			}
			for k := si; k <= len(s); k++ {
				if matchFrom(ops, oi+1, s, k) {
					return true
				}
			}
			return false
		case opAny:
			if si >= len(s) {
				return false
			}
			oi++
			si++
		case opLiteral:
			if si >= len(s) || s[si] != o.lit {
				return false
			}
			oi++
			si++
		case opClass:
			if si >= len(s) || !o.class.match(s[si]) {
				return false
			}
			oi++
			si++
		}
	}
	return si == len(s)
}
