// Package testutils provides testing utilities for the portal client.
//
// This package contains helpers for:
//  1. Running a fake portal API (APIServer) routed with chi, with scripted
//     replies and a log of every request it received
//  2. Issuing JWTs signed with a test-only secret
//  3. Capturing slog output in memory (LogRecorder)
//
// # Fake API
//
//	srv := testutils.NewAPIServer(t)
//	srv.JSON(http.MethodGet, "user/grades", http.StatusOK, []map[string]any{{"id": 1}})
//	srv.Sequence(http.MethodGet, "status",
//	    testutils.Reply{Status: http.StatusOK, Body: map[string]any{"status": "ok"}},
//	    testutils.Reply{Status: http.StatusServiceUnavailable},
//	)
//	client := api.NewClient(api.Options{Host: api.StaticHost(srv.BaseURL())})
//
// Paths are given the way the client's gateway normalizes them, without the
// "/api" root. Routes may be replaced while the server is running.
package testutils
