// mock-stack serves just enough of the local environment to exercise
// dinewatch end to end: a Loki-shaped query_range endpoint that replays a
// canned error burst, per-service health endpoints, and a restart controller
// that always accepts.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"
)

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func main() {
	mux := http.NewServeMux()

	mux.HandleFunc("/loki/api/v1/query_range", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		lines := []struct {
			offset  time.Duration
			message string
		}{
			{-4 * time.Minute, "Error: connect ECONNREFUSED 127.0.0.1:5432"},
			{-4*time.Minute + 10*time.Second, "    at TCPConnectWrap.afterConnect (node:net:1300:16)"},
			{-3 * time.Minute, "Error: connect ECONNREFUSED 127.0.0.1:5432"},
			{-2 * time.Minute, "request completed in 183ms"},
			{-1 * time.Minute, "Error: connect ECONNREFUSED 127.0.0.1:5432"},
		}

		stream := lokiStream{
			Stream: map[string]string{"service": "backend-api", "level": "error"},
		}
		for _, line := range lines {
			ts := strconv.FormatInt(now.Add(line.offset).UnixNano(), 10)
			stream.Values = append(stream.Values, [2]string{ts, line.message})
		}

		writeJSON(w, map[string]any{
			"status": "success",
			"data": map[string]any{
				"resultType": "streams",
				"result":     []lokiStream{stream},
			},
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/restart", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Service string `json:"service"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		log.Printf("restart requested for %q", body.Service)
		writeJSON(w, map[string]string{"status": "restarting", "service": body.Service})
	})

	logger := log.New(log.Writer(), "mock-stack ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":3100",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :3100")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
