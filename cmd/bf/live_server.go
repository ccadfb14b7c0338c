package main

import (
	"net/http"

	"bf/internal/live"
)

// newLiveMux wires a Session's websocket handler onto the one route a
// watching browser tab needs.
func newLiveMux(s *live.Session) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ticks", s.Handler)
	return mux
}

func listenAndServe(addr string, mux *http.ServeMux) error {
	return http.ListenAndServe(addr, mux)
}
