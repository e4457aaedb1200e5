package server

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var indexHTML []byte

// LandingHandler serves the embedded landing page.
func LandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	}
}
