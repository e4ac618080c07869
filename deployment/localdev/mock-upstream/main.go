package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Modes understood by both fake backends.
const (
	modeOK      = "ok"
	modeAlert   = "alert"
	modeError   = "error"
	modeGarbage = "garbage"
	modeSlow    = "slow"
)

type state struct {
	mu     sync.RWMutex
	am     string
	zabbix string
}

func (s *state) get() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.am, s.zabbix
}

func main() {
	addr := flag.String("addr", ":9093", "listen address")
	amMode := flag.String("alertmanager", modeOK, "alertmanager mode: ok|alert|error|garbage|slow")
	zbxMode := flag.String("zabbix", modeOK, "zabbix mode: ok|alert|error|garbage|slow")
	token := flag.String("token", "local-token", "expected zabbix token")
	flag.Parse()

	st := &state{am: *amMode, zabbix: *zbxMode}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// POST /control?alertmanager=alert&zabbix=error flips modes without a restart.
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		st.mu.Lock()
		if v := r.URL.Query().Get("alertmanager"); v != "" {
			st.am = strings.ToLower(v)
		}
		if v := r.URL.Query().Get("zabbix"); v != "" {
			st.zabbix = strings.ToLower(v)
		}
		am, zbx := st.am, st.zabbix
		st.mu.Unlock()
		writeJSON(w, map[string]string{"alertmanager": am, "zabbix": zbx})
	})

	mux.HandleFunc("/api/v2/alerts", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodGet) {
			return
		}
		mode, _ := st.get()
		switch mode {
		case modeAlert:
			writeJSON(w, []map[string]any{{
				"fingerprint": "5f1e2c3d",
				"labels":      map[string]string{"alertname": "HighLatency", "severity": "critical"},
				"startsAt":    time.Now().Add(-5 * time.Minute),
				"status":      map[string]string{"state": "active"},
			}})
		case modeError:
			w.WriteHeader(http.StatusBadGateway)
		case modeGarbage:
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		case modeSlow:
			time.Sleep(10 * time.Second)
			writeJSON(w, []any{})
		default:
			writeJSON(w, []any{})
		}
	})

	mux.HandleFunc("/api_jsonrpc.php", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			Method string `json:"method"`
			Auth   string `json:"auth"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRPCError(w, 0, -32700, "Parse error", err.Error())
			return
		}
		if req.Method != "problem.get" {
			writeRPCError(w, req.ID, -32601, "Method not found.", req.Method)
			return
		}
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if req.Auth != *token && bearer != *token {
			writeRPCError(w, req.ID, -32602, "Invalid params.", "Not authorised.")
			return
		}

		_, mode := st.get()
		switch mode {
		case modeAlert:
			writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": []map[string]string{
				{"eventid": "1042", "name": "Disk space is low on db01", "severity": "4"},
			}})
		case modeError:
			writeRPCError(w, req.ID, -32500, "Application error.", "Database is unavailable.")
		case modeGarbage:
			writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "not-an-array"})
		case modeSlow:
			time.Sleep(10 * time.Second)
			writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": []any{}})
		default:
			writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": []any{}})
		}
	})

	logger := log.New(log.Writer(), "upstream-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeRPCError(w http.ResponseWriter, id, code int, message, data string) {
	writeJSON(w, map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message, "data": data},
	})
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
