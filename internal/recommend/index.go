// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

// IndexMapping maps external user IDs and ISBNs to dense 0-based training
// indices. It is immutable once BuildIndex returns.
type IndexMapping struct {
	// Users and Items hold the external identifier for each index.
	Users []int
	Items []string

	userIndex map[int]int
	itemIndex map[string]int
}

// NewIndexMapping rebuilds a mapping from its index-ordered identifiers,
// e.g. after loading a snapshot.
func NewIndexMapping(users []int, items []string) *IndexMapping {
	m := &IndexMapping{
		Users:     users,
		Items:     items,
		userIndex: make(map[int]int, len(users)),
		itemIndex: make(map[string]int, len(items)),
	}
	for i, u := range users {
		m.userIndex[u] = i
	}
	for i, isbn := range items {
		m.itemIndex[isbn] = i
	}
	return m
}

// UserIndex returns the dense index of userID.
func (m *IndexMapping) UserIndex(userID int) (int, bool) {
	idx, ok := m.userIndex[userID]
	return idx, ok
}

// ItemIndex returns the dense index of isbn.
func (m *IndexMapping) ItemIndex(isbn string) (int, bool) {
	idx, ok := m.itemIndex[isbn]
	return idx, ok
}

// NumUsers returns the number of indexed users.
func (m *IndexMapping) NumUsers() int { return len(m.Users) }

// NumItems returns the number of indexed ISBNs.
func (m *IndexMapping) NumItems() int { return len(m.Items) }

// BuildIndex assigns indices in encounter order and projects the cleaned
// ratings into triples. The same input order always yields the same mapping.
func BuildIndex(set *CleanedRatingSet) (*IndexMapping, []Triple) {
	m := &IndexMapping{
		userIndex: make(map[int]int),
		itemIndex: make(map[string]int),
	}
	triples := make([]Triple, 0, set.Len())

	for _, r := range set.Ratings {
		u, ok := m.userIndex[r.UserID]
		if !ok {
			u = len(m.Users)
			m.userIndex[r.UserID] = u
			m.Users = append(m.Users, r.UserID)
		}
		i, ok := m.itemIndex[r.ISBN]
		if !ok {
			i = len(m.Items)
			m.itemIndex[r.ISBN] = i
			m.Items = append(m.Items, r.ISBN)
		}
		triples = append(triples, Triple{User: u, Item: i, Rating: float64(r.Value)})
	}

	return m, triples
}
