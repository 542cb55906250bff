// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

// CleanReport counts the rows each cleaning step removed.
type CleanReport struct {
	Input        int `json:"input" yaml:"input"`
	Implicit     int `json:"implicit_dropped" yaml:"implicit_dropped"`
	Year         int `json:"year_dropped" yaml:"year_dropped"`
	ItemSupport  int `json:"item_support_dropped" yaml:"item_support_dropped"`
	UserSupport  int `json:"user_support_dropped" yaml:"user_support_dropped"`
	Join         int `json:"join_dropped" yaml:"join_dropped"`
	Output       int `json:"output" yaml:"output"`
	BooksKept    int `json:"books_kept" yaml:"books_kept"`
	BooksDropped int `json:"books_dropped" yaml:"books_dropped"`
}

// Dropped returns the per-step drop counts keyed by step name.
func (r CleanReport) Dropped() map[string]int {
	return map[string]int{
		"implicit":     r.Implicit,
		"year":         r.Year,
		"item_support": r.ItemSupport,
		"user_support": r.UserSupport,
		"join":         r.Join,
	}
}

// Clean applies, in order: implicit-rating removal, the publication-year
// filter, the ISBN support filter, the user support filter and the title
// join. Each step sees only the rows the previous step kept, and the input
// order of the surviving ratings is preserved. Duplicate rows pass through.
func Clean(ratings []RawRating, books []RawBook, cfg CleaningConfig) (*CleanedRatingSet, CleanReport) {
	report := CleanReport{Input: len(ratings)}

	// 1. implicit ratings
	rows := make([]RawRating, 0, len(ratings))
	for _, r := range ratings {
		if cfg.DropImplicit && r.Rating == 0 {
			report.Implicit++
			continue
		}
		rows = append(rows, r)
	}

	// 2. publication year
	titles := make(map[string]string, len(books))
	removed := make(map[string]struct{})
	for _, b := range books {
		if !cfg.YearInRange(b.Year) {
			removed[b.ISBN] = struct{}{}
			report.BooksDropped++
			continue
		}
		if _, dup := titles[b.ISBN]; !dup {
			report.BooksKept++
		}
		titles[b.ISBN] = b.Title
	}
	rows = filterRatings(rows, &report.Year, func(r RawRating) bool {
		if _, ok := removed[r.ISBN]; !ok {
			return true
		}
		// A valid duplicate book row for the same ISBN wins.
		_, ok := titles[r.ISBN]
		return ok
	})

	// 3. ISBN support
	itemCounts := make(map[string]int)
	for _, r := range rows {
		itemCounts[r.ISBN]++
	}
	rows = filterRatings(rows, &report.ItemSupport, func(r RawRating) bool {
		return itemCounts[r.ISBN] > cfg.MinItemRatings
	})

	// 4. user support
	if cfg.FilterUsers {
		userCounts := make(map[int]int)
		for _, r := range rows {
			userCounts[r.UserID]++
		}
		rows = filterRatings(rows, &report.UserSupport, func(r RawRating) bool {
			return userCounts[r.UserID] > cfg.MinUserRatings
		})
	}

	// 5. title join
	set := &CleanedRatingSet{
		Ratings: make([]Rating, 0, len(rows)),
		Titles:  make(map[string]string),
	}
	for _, r := range rows {
		title := titles[r.ISBN]
		if title == "" {
			report.Join++
			continue
		}
		set.Ratings = append(set.Ratings, Rating{UserID: r.UserID, ISBN: r.ISBN, Value: r.Rating})
		set.Titles[r.ISBN] = title
	}
	report.Output = len(set.Ratings)

	return set, report
}

func filterRatings(rows []RawRating, dropped *int, keep func(RawRating) bool) []RawRating {
	out := rows[:0]
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
			continue
		}
		*dropped++
	}
	return out
}
