// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import "sort"

// Recommend scores every candidate the user has not rated and returns the
// topN best, highest score first with ties broken by ISBN ascending.
// Duplicate candidates are scored once. An empty candidate set yields an
// empty result, not an error. topN <= 0 returns every scored candidate.
func Recommend(model *TrainedModel, userID int, candidates []string, rated map[string]struct{}, topN int) RecommendationResult {
	if model == nil {
		panic(ErrModelNotTrained)
	}

	result := RecommendationResult{
		UserID:       userID,
		ModelVersion: model.Version,
		ColdStart:    !model.KnowsUser(userID),
		Items:        []ScoredBook{},
	}

	seen := make(map[string]struct{}, len(candidates))
	scored := make([]ScoredBook, 0, len(candidates))
	for _, isbn := range candidates {
		if _, ok := rated[isbn]; ok {
			continue
		}
		if _, ok := seen[isbn]; ok {
			continue
		}
		seen[isbn] = struct{}{}
		scored = append(scored, ScoredBook{ISBN: isbn, Title: model.Titles[isbn], Score: model.Predict(userID, isbn)})
	}

	sortScored(scored)
	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	result.Items = scored
	return result
}

// RatedSet builds the exclusion set for one user from rating rows.
func RatedSet(ratings []Rating, userID int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range ratings {
		if r.UserID == userID {
			out[r.ISBN] = struct{}{}
		}
	}
	return out
}

func sortScored(items []ScoredBook) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ISBN < items[j].ISBN
	})
}
