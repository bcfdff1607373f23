package orderbook

import "github.com/shopspring/decimal"

// LevelSet is one side of a book. Bids iterate from the highest price
// down, asks from the lowest price up; the head is always the best level.
type LevelSet struct {
	side Side
	tree *RBTree
}

func NewLevelSet(side Side) *LevelSet {
	return &LevelSet{side: side, tree: NewRBTree()}
}

func (s *LevelSet) Side() Side { return s.side }

func (s *LevelSet) Len() int { return s.tree.Size() }

// Set applies a level change: quantity 0 removes, anything else upserts.
func (s *LevelSet) Set(price decimal.Decimal, qty int64) {
	if qty == 0 {
		s.tree.Delete(price)
		return
	}
	s.tree.Upsert(price, qty)
}

func (s *LevelSet) Quantity(price decimal.Decimal) (int64, bool) {
	return s.tree.Find(price)
}

// Best returns the head of the side.
func (s *LevelSet) Best() (Level, bool) {
	if s.side == Buy {
		return s.tree.Max()
	}
	return s.tree.Min()
}

// Walk visits levels best first until fn returns false.
func (s *LevelSet) Walk(fn func(Level) bool) {
	if s.side == Buy {
		s.tree.ForEachDescending(fn)
		return
	}
	s.tree.ForEachAscending(fn)
}

// Top returns up to depth levels best first; depth <= 0 returns all.
func (s *LevelSet) Top(depth int) []Level {
	n := s.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]Level, 0, n)
	if n == 0 {
		return out
	}
	s.Walk(func(l Level) bool {
		out = append(out, l)
		return len(out) < n
	})
	return out
}

// Replace discards every level and loads levels. Zero quantities and
// non-positive prices are skipped, and a repeated price keeps its last
// quantity.
func (s *LevelSet) Replace(levels []Level) {
	s.tree.Clear()
	for _, l := range levels {
		if !l.Price.IsPositive() {
			continue
		}
		if l.Quantity <= 0 {
			s.tree.Delete(l.Price)
			continue
		}
		s.tree.Upsert(l.Price, l.Quantity)
	}
}

func (s *LevelSet) Clear() {
	s.tree.Clear()
}
