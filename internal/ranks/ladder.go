package ranks

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyLadder indicates a ladder was constructed without any rank.
	ErrEmptyLadder = errors.New("ranks: ladder requires at least one rank")
	// ErrDuplicateRank indicates the same rank name appears twice.
	ErrDuplicateRank = errors.New("ranks: duplicate rank")
	// ErrUnknownRank indicates a name outside the ladder.
	ErrUnknownRank = errors.New("ranks: unknown rank")
)

// DefaultNames lists the guild ranks from lowest to highest.
var DefaultNames = []string{
	"Screening",
	"Applicant",
	"Employee",
	"Team Leader",
	"Manager",
	"Director",
	"Chairman",
}

// Ladder is a strict total order over rank role names. Index 0 is the lowest rank.
type Ladder struct {
	names []string
	index map[string]int
}

// NewLadder validates names and builds a Ladder ordered from lowest to highest.
func NewLadder(names []string) (*Ladder, error) {
	if len(names) == 0 {
		return nil, ErrEmptyLadder
	}
	ladder := &Ladder{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("%w: blank name", ErrEmptyLadder)
		}
		if _, exists := ladder.index[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRank, name)
		}
		ladder.index[name] = len(ladder.names)
		ladder.names = append(ladder.names, name)
	}
	return ladder, nil
}

// MustDefault returns the built-in ladder.
func MustDefault() *Ladder {
	ladder, err := NewLadder(DefaultNames)
	if err != nil {
		panic(err)
	}
	return ladder
}

// Names returns a copy of the ladder, lowest first.
func (l *Ladder) Names() []string {
	return append([]string(nil), l.names...)
}

// Len reports the number of ranks.
func (l *Ladder) Len() int {
	return len(l.names)
}

// Index returns the position of name, 0 being the lowest rank.
func (l *Ladder) Index(name string) (int, bool) {
	idx, ok := l.index[name]
	return idx, ok
}

// Contains reports whether name is a rank on the ladder.
func (l *Ladder) Contains(name string) bool {
	_, ok := l.index[name]
	return ok
}

// Validate returns ErrUnknownRank when name is not on the ladder.
func (l *Ladder) Validate(name string) error {
	if !l.Contains(name) {
		return fmt.Errorf("%w: %q", ErrUnknownRank, name)
	}
	return nil
}

// Current returns the rank held among roles. When several rank roles are held
// the highest one wins.
func (l *Ladder) Current(roles []string) (string, bool) {
	best := -1
	for _, role := range roles {
		if idx, ok := l.index[role]; ok && idx > best {
			best = idx
		}
	}
	if best < 0 {
		return "", false
	}
	return l.names[best], true
}

// Held returns every rank role present in roles, lowest first.
func (l *Ladder) Held(roles []string) []string {
	present := make(map[int]struct{}, len(roles))
	for _, role := range roles {
		if idx, ok := l.index[role]; ok {
			present[idx] = struct{}{}
		}
	}
	held := make([]string, 0, len(present))
	for idx, name := range l.names {
		if _, ok := present[idx]; ok {
			held = append(held, name)
		}
	}
	return held
}

// Next returns the rank directly above the current one. It reports false at the
// top of the ladder or when roles hold no rank.
func (l *Ladder) Next(roles []string) (string, bool) {
	current, ok := l.Current(roles)
	if !ok {
		return "", false
	}
	idx := l.index[current]
	if idx+1 >= len(l.names) {
		return "", false
	}
	return l.names[idx+1], true
}

// Previous returns the rank directly below the current one. It reports false at
// the bottom of the ladder or when roles hold no rank.
func (l *Ladder) Previous(roles []string) (string, bool) {
	current, ok := l.Current(roles)
	if !ok {
		return "", false
	}
	idx := l.index[current]
	if idx == 0 {
		return "", false
	}
	return l.names[idx-1], true
}

// Above reports whether rank sits strictly above ceiling. Unknown names are never above.
func (l *Ladder) Above(rank, ceiling string) bool {
	rankIdx, ok := l.index[rank]
	if !ok {
		return false
	}
	ceilingIdx, ok := l.index[ceiling]
	if !ok {
		return false
	}
	return rankIdx > ceilingIdx
}
