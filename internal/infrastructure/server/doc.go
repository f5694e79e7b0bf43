// Package server provides the optional HTTP status endpoint of a running pool.
//
// Routes:
//   - GET /         run id and lifecycle state
//   - GET /health   200 while running, 503 once stopping
//   - GET /workers  per-worker snapshot
//   - GET /metrics  Prometheus exposition of the pool registry
//   - GET /stream   websocket tap of received samples
//
// Example Usage:
//
//	hub := server.NewHub(logger, 0)
//	coord := supervisor.New(cfg, spawner, supervisor.WithSampleHook(hub.Publish))
//	srv := server.New(server.Config{Addr: ":9090"}, coord, reg, hub, logger)
//	go srv.Run(ctx)
package server
