// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package api serves the read side of Shelfwise over HTTP using the chi router.

Routes:

	GET  /healthz                                  database and model status
	GET  /metrics                                  Prometheus exposition
	GET  /api/v1/model                             training status and last run
	GET  /api/v1/users/{userID}/recommendations    top-N for one user (?n=)
	POST /api/v1/train                             start a pipeline run (202, or 409 while one runs)

Recommendations are computed from the serving model on demand and memoized
in a TTL LRU keyed by model version, user and list length. Publishing a new
model changes the version, so cached lists from the previous model are
never served.

All JSON responses share the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"timestamp": "...", "request_id": "..."}}
	{"success": false, "error": {"code": "VALIDATION_FAILED", "message": "..."}}
*/
package api
