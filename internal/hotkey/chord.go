// Package hotkey turns raw key events into chord activations.
package hotkey

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrInvalidChord = errors.New("hotkey: invalid chord")

// Chord is an ordered set of key groups that must all be held at once. Each
// group lists alternative codes, e.g. left or right ctrl. The last group is
// the trigger key.
type Chord struct {
	groups [][]uint16
	text   string
}

// ParseChord parses "super+v", "ctrl+shift+1" or "code:183". Names are case
// insensitive.
func ParseChord(s string) (Chord, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Chord{}, fmt.Errorf("%w: empty", ErrInvalidChord)
	}
	var c Chord
	var names []string
	for _, tok := range strings.Split(s, "+") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if a, ok := aliases[tok]; ok {
			tok = a
		}
		codes, err := lookup(tok)
		if err != nil {
			return Chord{}, fmt.Errorf("%w %q: %w", ErrInvalidChord, s, err)
		}
		for _, g := range c.groups {
			if slices.Equal(g, codes) {
				return Chord{}, fmt.Errorf("%w %q: %s repeated", ErrInvalidChord, s, tok)
			}
		}
		c.groups = append(c.groups, codes)
		names = append(names, tok)
	}
	c.text = strings.Join(names, "+")
	return c, nil
}

// MustParseChord is ParseChord for constants.
func MustParseChord(s string) Chord {
	c, err := ParseChord(s)
	if err != nil {
		panic(err)
	}
	return c
}

func lookup(tok string) ([]uint16, error) {
	if tok == "" {
		return nil, errors.New("empty key name")
	}
	if raw, ok := strings.CutPrefix(tok, "code:"); ok {
		n, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || n == 0 || n > 0x2ff {
			return nil, fmt.Errorf("bad key code %q", raw)
		}
		return []uint16{uint16(n)}, nil
	}
	codes, ok := keyNames[tok]
	if !ok {
		return nil, fmt.Errorf("unknown key %q", tok)
	}
	return codes, nil
}

func (c Chord) String() string { return c.text }

// Canonical is an order-independent form: chords with equal Canonical
// values are held by the same keys, e.g. "ctrl+v" and "v+ctrl".
func (c Chord) Canonical() string {
	parts := make([]string, len(c.groups))
	for i, g := range c.groups {
		codes := make([]string, len(g))
		for j, code := range slices.Sorted(slices.Values(g)) {
			codes[j] = strconv.Itoa(int(code))
		}
		parts[i] = strings.Join(codes, "|")
	}
	slices.Sort(parts)
	return strings.Join(parts, "+")
}

// Len is the number of key groups.
func (c Chord) Len() int { return len(c.groups) }

// IsZero reports whether c is the zero Chord.
func (c Chord) IsZero() bool { return len(c.groups) == 0 }

// Codes returns one code per group, the first alternative, in order. This is
// the sequence to press when synthesizing the chord.
func (c Chord) Codes() []uint16 {
	out := make([]uint16, len(c.groups))
	for i, g := range c.groups {
		out[i] = g[0]
	}
	return out
}

// Contains reports whether code satisfies any group.
func (c Chord) Contains(code uint16) bool {
	for _, g := range c.groups {
		if slices.Contains(g, code) {
			return true
		}
	}
	return false
}

// satisfied reports whether every group has a held key.
func (c Chord) satisfied(held func(uint16) bool) bool {
	for _, g := range c.groups {
		if !slices.ContainsFunc(g, held) {
			return false
		}
	}
	return len(c.groups) > 0
}

// anyHeld reports whether at least one of the chord's keys is held.
func (c Chord) anyHeld(held func(uint16) bool) bool {
	for _, g := range c.groups {
		if slices.ContainsFunc(g, held) {
			return true
		}
	}
	return false
}

// ActionKind is what a binding asks the engine to do.
type ActionKind int

const (
	Open ActionKind = iota + 1
	Next
	Prev
	QuickPaste
)

// Action is an ActionKind plus the 1-based slot for QuickPaste.
type Action struct {
	Kind ActionKind
	Slot int
}

func (k ActionKind) String() string {
	switch k {
	case Open:
		return "open"
	case Next:
		return "next"
	case Prev:
		return "prev"
	case QuickPaste:
		return "quick-paste"
	default:
		return "unknown"
	}
}

func (a Action) String() string {
	if a.Kind == QuickPaste {
		return "quick-paste-" + strconv.Itoa(a.Slot)
	}
	return a.Kind.String()
}

// Binding ties a chord to an action.
type Binding struct {
	Name   string
	Chord  Chord
	Action Action
}
