package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const maxBody = 10 << 20

func newHandler(id string, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	})

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		log.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("from", r.RemoteAddr))
		w.Header().Set("X-Backend-ID", id)
		writeText(w, http.StatusOK, fmt.Sprintf("Hello from %s! You requested %s\n", id, r.URL.RequestURI()))
	})

	mux.HandleFunc("POST /", func(w http.ResponseWriter, r *http.Request) {
		n, err := io.Copy(io.Discard, http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		log.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int64("bytes", n))
		w.Header().Set("X-Backend-ID", id)
		writeText(w, http.StatusOK, fmt.Sprintf("POST to %s: got %d bytes\n", id, n))
	})

	return mux
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}
