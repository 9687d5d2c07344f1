package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ravelhq/ravel/internal/diag"
)

// HTTPHandler exposes the tool registry over HTTP: POST /tools/{name}
// with a JSON body as the payload, returning the standard envelope.
// This is the optional transport of spec.md §6; stdio remains the
// default.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		tool := r.URL.Path[len("/tools/"):]
		var payload json.RawMessage
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err.Error() != "EOF" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(Fail(fmt.Errorf("decoding request body: %w", err)))
				return
			}
		}

		env := s.Dispatch(r.Context(), tool, payload)
		w.Header().Set("Content-Type", "application/json")
		if !env.Success {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		if err := json.NewEncoder(w).Encode(env); err != nil {
			diag.Logf("http: encoding response for tool=%s: %v", tool, err)
		}
	})
	return mux
}

// ListenAndServeHTTP starts a blocking HTTP server on addr.
func (s *Server) ListenAndServeHTTP(addr string) error {
	diag.PrintNormal("ravel: serving HTTP transport on %s", addr)
	return http.ListenAndServe(addr, s.HTTPHandler())
}
