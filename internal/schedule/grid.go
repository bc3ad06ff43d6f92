// Package schedule implements the canonical time grid and the
// consecutive-slot resolver built on top of it.
package schedule

import (
	"fmt"
	"time"
)

// Grid is the canonical ordered sequence of time-of-day tokens slots may
// occupy. Adjacency between slots is defined by adjacency on the grid.
type Grid struct {
	tokens []string
	index  map[string]int
}

// NewGrid builds a grid from dayStart to dayEnd (exclusive) stepping by
// slotMinutes. Tokens are formatted as HH:MM.
func NewGrid(dayStart, dayEnd string, slotMinutes int) (*Grid, error) {
	if slotMinutes <= 0 {
		slotMinutes = 30
	}

	start, err := time.Parse("15:04", dayStart)
	if err != nil {
		return nil, fmt.Errorf("parse day start %q: %w", dayStart, err)
	}
	end, err := time.Parse("15:04", dayEnd)
	if err != nil {
		return nil, fmt.Errorf("parse day end %q: %w", dayEnd, err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("day start %s must be before day end %s", dayStart, dayEnd)
	}

	step := time.Duration(slotMinutes) * time.Minute
	g := &Grid{index: make(map[string]int)}
	for cursor := start; cursor.Before(end); cursor = cursor.Add(step) {
		token := cursor.Format("15:04")
		g.index[token] = len(g.tokens)
		g.tokens = append(g.tokens, token)
	}
	return g, nil
}

// Contains reports whether token is on the grid.
func (g *Grid) Contains(token string) bool {
	_, ok := g.index[token]
	return ok
}

// Next returns the token following the given one, or false when the grid
// runs out.
func (g *Grid) Next(token string) (string, bool) {
	i, ok := g.index[token]
	if !ok || i+1 >= len(g.tokens) {
		return "", false
	}
	return g.tokens[i+1], true
}

// Adjacent reports whether b immediately follows a on the grid.
func (g *Grid) Adjacent(a, b string) bool {
	next, ok := g.Next(a)
	return ok && next == b
}

// Contiguous reports whether tokens form an adjacent run on the grid, in
// the given order.
func (g *Grid) Contiguous(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	if !g.Contains(tokens[0]) {
		return false
	}
	for i := 1; i < len(tokens); i++ {
		if !g.Adjacent(tokens[i-1], tokens[i]) {
			return false
		}
	}
	return true
}

// Tokens returns the full ordered token sequence.
func (g *Grid) Tokens() []string {
	return append([]string(nil), g.tokens...)
}
