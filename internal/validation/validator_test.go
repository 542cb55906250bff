// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package validation

import (
	"strings"
	"testing"
)

type testRow struct {
	ISBN   string `validate:"required,isbn_code"`
	Rating int    `validate:"gte=0,lte=10"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		row     testRow
		wantTag string
	}{
		{name: "valid isbn10", row: testRow{ISBN: "0195153448", Rating: 5}},
		{name: "valid isbn with check X", row: testRow{ISBN: "034545104X", Rating: 0}},
		{name: "valid isbn13", row: testRow{ISBN: "9780195153446", Rating: 10}},
		{name: "missing isbn", row: testRow{Rating: 3}, wantTag: "required"},
		{name: "isbn with quote", row: testRow{ISBN: `"0195153448`, Rating: 3}, wantTag: "isbn_code"},
		{name: "isbn too long", row: testRow{ISBN: "97801951534460", Rating: 3}, wantTag: "isbn_code"},
		{name: "rating above scale", row: testRow{ISBN: "0195153448", Rating: 11}, wantTag: "lte"},
		{name: "negative rating", row: testRow{ISBN: "0195153448", Rating: -1}, wantTag: "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.row)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() = nil, want %s failure", tt.wantTag)
			}
			if got := err.FirstTag(); got != tt.wantTag {
				t.Errorf("FirstTag() = %q, want %q", got, tt.wantTag)
			}
		})
	}
}

func TestErrors_Message(t *testing.T) {
	err := ValidateStruct(&testRow{Rating: 42})
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("len(Errors()) = %d, want 2", len(err.Errors()))
	}
	msg := err.Error()
	if !strings.Contains(msg, "ISBN is required") {
		t.Errorf("Error() = %q, want it to mention the missing ISBN", msg)
	}
	if !strings.Contains(msg, "Rating must be less than or equal to 10") {
		t.Errorf("Error() = %q, want it to mention the rating bound", msg)
	}
}
