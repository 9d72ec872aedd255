package main

import (
	"net/http"

	"reviewpulse"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *reviewpulse.Engine) http.Handler {
	mux := http.NewServeMux()

	h := &handlers{engine: engine}

	mux.HandleFunc("POST /reviews/{source}/collect", h.handleCollect)
	mux.HandleFunc("POST /reviews/{source}/analyze", h.handleAnalyze)
	mux.HandleFunc("GET /reviews/{source}/metrics", h.handleMetrics)
	mux.HandleFunc("GET /reviews/{source}/export", h.handleExport)

	return mux
}
