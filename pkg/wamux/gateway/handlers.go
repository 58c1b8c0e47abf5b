package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// sendRequest is the POST /send payload.
type sendRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// sendResponse is the POST /send result.
type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// errorResponse is the consistent error format.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	_ = enc.Encode(errorResponse{Error: struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{Message: msg, Code: code}})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// handleSend implements POST /send. number selects the session; the
// message lands in that number's own chat, where the account owner
// reads it.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", 405)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		g.writeJSON(w, 400, sendResponse{Error: "invalid request body"})
		return
	}

	number := transport.BareNumber(req.Number)
	if number == "" {
		g.writeJSON(w, 400, sendResponse{Error: "number is required"})
		return
	}
	if req.Message == "" {
		g.writeJSON(w, 400, sendResponse{Error: "message is required"})
		return
	}

	view, ok := g.registry.Lookup(number)
	if !ok {
		g.writeJSON(w, 404, sendResponse{Error: "session not found"})
		return
	}
	if !view.Connected {
		g.writeJSON(w, 409, sendResponse{Error: "session not connected"})
		return
	}
	conn, ok := g.registry.Conn(number)
	if !ok {
		g.writeJSON(w, 404, sendResponse{Error: "session not found"})
		return
	}

	if err := conn.SendText(r.Context(), number, req.Message); err != nil {
		g.logger.Error("send failed", "account", number,
			"request_id", requestIDFrom(r.Context()), "error", err)
		g.writeJSON(w, 502, sendResponse{Error: "send failed"})
		return
	}
	g.writeJSON(w, 200, sendResponse{Success: true})
}

// handleSessions implements GET /sessions with registry snapshots.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", 405)
		return
	}
	g.writeJSON(w, 200, map[string]any{"sessions": g.registry.ListAll()})
}

// handleHealth implements GET /health (always unauthenticated).
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", 405)
		return
	}
	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}

	views := g.registry.ListAll()
	connected := 0
	for _, v := range views {
		if v.Connected {
			connected++
		}
	}
	g.writeJSON(w, 200, map[string]any{
		"status":    "ok",
		"version":   g.version,
		"uptime":    uptime,
		"connected": connected,
		"sessions":  views,
	})
}

const indexPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>wamux</title>
<style>
body { font-family: ui-monospace, monospace; max-width: 42rem; margin: 4rem auto; color: #222; }
code { background: #f4f4f4; padding: 0 .3rem; }
</style>
</head>
<body>
<h1>wamux</h1>
<p>Multi-account WhatsApp automation daemon.</p>
<ul>
<li><code>POST /send</code> — {"number": "...", "message": "..."}</li>
<li><code>GET /sessions</code> — session registry snapshots</li>
<li><code>GET /health</code> — liveness and uptime</li>
</ul>
</body>
</html>
`

// handleIndex serves the landing page at exactly "/".
func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		g.writeError(w, "not found", 404)
		return
	}
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", 405)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}
