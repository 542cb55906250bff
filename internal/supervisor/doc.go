// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package supervisor runs the serve-mode services under a suture supervisor
tree.

The tree has two layers:

	shelfwise (root)
	├── pipeline-layer   scheduled retraining (services.RecommendService)
	└── api-layer        HTTP read API (services.HTTPServerService)

A crash in one layer restarts only that layer's services, so a failing
retrain never takes the read API down. Supervisor events are logged through
sutureslog, bridged to zerolog with logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddPipelineService(services.NewRecommendService(p, cfg, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second, logger))
	return tree.Serve(ctx)
*/
package supervisor
