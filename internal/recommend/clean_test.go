// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import "testing"

func noSupport() CleaningConfig {
	cfg, _ := CleaningProfile(ProfileCustom)
	cfg.MinItemRatings = 0
	cfg.MinUserRatings = 0
	return cfg
}

func TestClean_DropsImplicitRatings(t *testing.T) {
	ratings := []RawRating{
		{UserID: 1, ISBN: "ISBN1", Rating: 0},
		{UserID: 1, ISBN: "ISBN1", Rating: 8},
	}
	books := []RawBook{{ISBN: "ISBN1", Title: "Book", Year: 1999}}

	set, report := Clean(ratings, books, noSupport())

	if set.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", set.Len())
	}
	if got := set.Ratings[0].Value; got != 8 {
		t.Errorf("surviving rating = %d, want 8", got)
	}
	if report.Implicit != 1 {
		t.Errorf("report.Implicit = %d, want 1", report.Implicit)
	}
}

func TestClean_YearFilter(t *testing.T) {
	tests := []struct {
		name string
		year int
		keep bool
	}{
		{"before range", 1750, false},
		{"lower bound", 1800, true},
		{"inside range", 1995, true},
		{"upper bound", 2022, true},
		{"after range", 2023, false},
		{"unknown year", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books := []RawBook{{ISBN: "X", Title: "Book", Year: tt.year}}
			ratings := make([]RawRating, 20)
			for i := range ratings {
				ratings[i] = RawRating{UserID: i + 1, ISBN: "X", Rating: 7}
			}

			set, report := Clean(ratings, books, noSupport())

			if tt.keep && set.Len() != 20 {
				t.Errorf("Len() = %d, want 20", set.Len())
			}
			if !tt.keep {
				if set.Len() != 0 {
					t.Errorf("Len() = %d, want 0", set.Len())
				}
				if report.Year != 20 {
					t.Errorf("report.Year = %d, want 20", report.Year)
				}
			}
		})
	}
}

func TestClean_SeedingProfileYearBound(t *testing.T) {
	cfg, err := CleaningProfile(ProfileSeeding)
	if err != nil {
		t.Fatalf("CleaningProfile() error = %v", err)
	}
	cfg.MinItemRatings = 0

	books := []RawBook{{ISBN: "NEW", Title: "New", Year: 2020}, {ISBN: "OLD", Title: "Old", Year: 2018}}
	ratings := []RawRating{{UserID: 1, ISBN: "NEW", Rating: 5}, {UserID: 1, ISBN: "OLD", Rating: 5}}

	set, _ := Clean(ratings, books, cfg)
	if set.Len() != 1 || set.Ratings[0].ISBN != "OLD" {
		t.Errorf("Ratings = %v, want only OLD", set.Ratings)
	}
}

func TestClean_ItemSupportIsStrict(t *testing.T) {
	books := []RawBook{
		{ISBN: "FIVE", Title: "Five", Year: 2000},
		{ISBN: "SIX", Title: "Six", Year: 2000},
	}
	var ratings []RawRating
	for u := 1; u <= 5; u++ {
		ratings = append(ratings, RawRating{UserID: u, ISBN: "FIVE", Rating: 6})
	}
	for u := 1; u <= 6; u++ {
		ratings = append(ratings, RawRating{UserID: u, ISBN: "SIX", Rating: 6})
	}
	cfg := noSupport()
	cfg.MinItemRatings = 5

	set, report := Clean(ratings, books, cfg)

	for _, r := range set.Ratings {
		if r.ISBN == "FIVE" {
			t.Fatalf("isbn with exactly 5 ratings survived")
		}
	}
	if set.Len() != 6 {
		t.Errorf("Len() = %d, want 6", set.Len())
	}
	if report.ItemSupport != 5 {
		t.Errorf("report.ItemSupport = %d, want 5", report.ItemSupport)
	}
}

func TestClean_UserSupport(t *testing.T) {
	books := bookCatalog(10)
	var ratings []RawRating
	// user 1 rates 6 books, user 2 rates 5
	for b := 0; b < 6; b++ {
		ratings = append(ratings, RawRating{UserID: 1, ISBN: isbn(b), Rating: 7})
	}
	for b := 0; b < 5; b++ {
		ratings = append(ratings, RawRating{UserID: 2, ISBN: isbn(b), Rating: 7})
	}

	t.Run("recommender filters users", func(t *testing.T) {
		cfg := noSupport()
		cfg.MinUserRatings = 5
		set, report := Clean(ratings, books, cfg)
		for _, r := range set.Ratings {
			if r.UserID == 2 {
				t.Fatalf("user with 5 ratings survived")
			}
		}
		if report.UserSupport != 5 {
			t.Errorf("report.UserSupport = %d, want 5", report.UserSupport)
		}
	})

	t.Run("books-only filter keeps users", func(t *testing.T) {
		cfg := noSupport()
		cfg.MinUserRatings = 5
		cfg.FilterUsers = false
		set, _ := Clean(ratings, books, cfg)
		if set.Len() != 11 {
			t.Errorf("Len() = %d, want 11", set.Len())
		}
	})
}

func TestClean_StepsRunInOrder(t *testing.T) {
	// Implicit ratings must not count toward support: X has 6 rows but only
	// 5 explicit ones.
	books := []RawBook{{ISBN: "X", Title: "X", Year: 2000}}
	var ratings []RawRating
	for u := 1; u <= 5; u++ {
		ratings = append(ratings, RawRating{UserID: u, ISBN: "X", Rating: 9})
	}
	ratings = append(ratings, RawRating{UserID: 6, ISBN: "X", Rating: 0})

	cfg := noSupport()
	cfg.MinItemRatings = 5

	set, _ := Clean(ratings, books, cfg)
	if set.Len() != 0 {
		t.Errorf("Len() = %d, want 0", set.Len())
	}
}

func TestClean_TitleJoin(t *testing.T) {
	books := []RawBook{
		{ISBN: "A", Title: "Alpha", Year: 2000},
		{ISBN: "B", Title: "", Year: 2000},
	}
	ratings := []RawRating{
		{UserID: 1, ISBN: "A", Rating: 5},
		{UserID: 1, ISBN: "B", Rating: 5},
		{UserID: 1, ISBN: "MISSING", Rating: 5},
	}

	set, report := Clean(ratings, books, noSupport())

	if set.Len() != 1 || set.Ratings[0].ISBN != "A" {
		t.Errorf("Ratings = %v, want only A", set.Ratings)
	}
	if report.Join != 2 {
		t.Errorf("report.Join = %d, want 2", report.Join)
	}
	if set.Titles["A"] != "Alpha" {
		t.Errorf("Titles[A] = %q, want Alpha", set.Titles["A"])
	}
}

func TestClean_PreservesDuplicates(t *testing.T) {
	books := []RawBook{{ISBN: "A", Title: "Alpha", Year: 2000}}
	ratings := []RawRating{
		{UserID: 1, ISBN: "A", Rating: 5},
		{UserID: 1, ISBN: "A", Rating: 7},
	}

	set, _ := Clean(ratings, books, noSupport())
	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2", set.Len())
	}
}

func TestClean_Properties(t *testing.T) {
	books := bookCatalog(12)
	books[3].Year = 1700
	books[7].Year = 2100
	ratings := denseRatings(20, 12)
	for i := range ratings {
		if i%7 == 0 {
			ratings[i].Rating = 0
		}
	}
	// B011 only gets 3 ratings
	kept := ratings[:0]
	for _, r := range ratings {
		if r.ISBN == isbn(11) && r.UserID > 3 {
			continue
		}
		kept = append(kept, r)
	}
	ratings = kept

	cfg, _ := CleaningProfile(ProfileRecommender)
	set, report := Clean(ratings, books, cfg)

	counts := make(map[string]int)
	for _, r := range set.Ratings {
		if r.Value == 0 {
			t.Fatalf("implicit rating survived: %+v", r)
		}
		if r.ISBN == isbn(3) || r.ISBN == isbn(7) {
			t.Fatalf("out-of-range book survived: %+v", r)
		}
		counts[r.ISBN]++
	}
	if _, ok := counts[isbn(11)]; ok {
		t.Errorf("low-support isbn %s survived", isbn(11))
	}
	if report.Output != set.Len() {
		t.Errorf("report.Output = %d, want %d", report.Output, set.Len())
	}
	dropped := report.Implicit + report.Year + report.ItemSupport + report.UserSupport + report.Join
	if report.Input-dropped != report.Output {
		t.Errorf("report does not balance: %+v", report)
	}
}

func TestCleaningProfile_Unknown(t *testing.T) {
	if _, err := CleaningProfile("strict"); err == nil {
		t.Error("CleaningProfile(strict) error = nil, want error")
	}
}
