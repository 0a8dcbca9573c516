// ABOUTME: Legacy SSE transport: GET /sse for the event stream, POST /messages for requests.
// ABOUTME: Responses travel back over the session's SSE stream, not the POST reply.

package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/2389/mcp-hub/internal/dedupe"
)

// dedupeTTL bounds how long a request ID blocks retries of itself.
const dedupeTTL = 5 * time.Minute

// dedupeSize bounds the number of request keys tracked at once.
const dedupeSize = 4096

// sseStream is the per-session handle for the legacy transport: a
// serialized writer over the client's long-lived event stream.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	closed  bool
}

func newSSEStream(w http.ResponseWriter, flusher http.Flusher) *sseStream {
	return &sseStream{w: w, flusher: flusher, done: make(chan struct{})}
}

// send writes one SSE event. Sends after close are dropped.
func (st *sseStream) send(event string, data []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return fmt.Errorf("sse stream closed")
	}
	if _, err := fmt.Fprintf(st.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	st.flusher.Flush()
	return nil
}

// close releases the stream's handler goroutine. Idempotent under the
// session registry's single-cleanup guarantee, but guarded anyway since
// the handler can also reach it on write failure.
func (st *sseStream) close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.closed {
		st.closed = true
		close(st.done)
	}
}

func (s *Server) registerSSERoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/messages", s.handleSSEMessage)
}

// handleSSE opens the event stream and announces the message endpoint.
// The session lives until the client disconnects or the gateway shuts
// the session down.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := newSSEStream(w, flusher)
	sess := s.sessions.Open("sse", stream, stream.close)

	s.logger.Info("session created", "session_id", sess.ID, "transport", "sse")

	endpoint := fmt.Sprintf("/messages?sessionId=%s", sess.ID)
	if err := stream.send("endpoint", []byte(endpoint)); err != nil {
		s.sessions.Close(sess.ID)
		return
	}

	// Hold the connection open; closing the session releases it.
	select {
	case <-r.Context().Done():
		s.sessions.Close(sess.ID)
	case <-stream.done:
	}
	s.logger.Info("sse stream ended", "session_id", sess.ID)
}

// handleSSEMessage accepts a posted JSON-RPC request for an SSE session
// and emits the response on that session's event stream.
func (s *Server) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing sessionId", http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Route(sessionID)
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	stream, ok := sess.Handle.(*sseStream)
	if !ok {
		http.Error(w, "Bad Request: not an SSE session", http.StatusBadRequest)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize)).Decode(&req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		return
	}

	// Retried POSTs carry the same request ID; run the call once.
	if len(req.ID) > 0 && string(req.ID) != "null" {
		if s.dedupe.Duplicate(dedupe.Key(sessionID, string(req.ID))) {
			s.logger.Debug("duplicate request suppressed", "session_id", sessionID, "request_id", string(req.ID))
			w.WriteHeader(http.StatusAccepted)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)

	// Notifications get no response; emitting one on the stream would
	// hand the client an id:null error for every notifications/initialized.
	if len(req.ID) == 0 || string(req.ID) == "null" {
		return
	}

	var resp JSONRPCResponse
	if req.Method == "initialize" {
		resp = result(req.ID, initializeResult())
	} else {
		resp = s.dispatch(r.Context(), req)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("encoding sse response", "error", err)
		return
	}
	if err := stream.send("message", payload); err != nil {
		s.logger.Warn("writing sse response", "session_id", sessionID, "error", err)
		s.sessions.Close(sessionID)
	}
}
