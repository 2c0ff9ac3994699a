package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vbonduro/shopscan/internal/imaging"
	"github.com/vbonduro/shopscan/internal/session"
	"github.com/vbonduro/shopscan/internal/snapshot"
)

const maxFrameSize = 10 * 1024 * 1024 // 10 MB

// sseKeepAlive is how often an idle event stream sends a comment line.
const sseKeepAlive = 15 * time.Second

type submitCodeRequest struct {
	Code string `json:"code"`
}

// lookupSession resolves the {id} path value, writing a 404 when absent.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "get session", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var opts session.Options
	if err := decodeJSON(w, r, &opts); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.sessions.Create(opts)
	if err != nil {
		s.writeError(w, r, "create session", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusCreated, sess.Info())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.Touch()
	jsonResponse(w, s.logger, http.StatusOK, sess.Info())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.PathValue("id")); err != nil {
		s.writeError(w, r, "stop session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePushFrame accepts one JPEG or PNG camera frame as the raw request
// body.
func (s *Server) handlePushFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	defer closeWithLog(r.Body, "frame body", s.logger)
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, s.logger, http.StatusRequestEntityTooLarge, "frame too large")
			return
		}
		jsonError(w, s.logger, http.StatusBadRequest, "failed to read frame")
		return
	}

	img, err := imaging.DecodeFrame(data)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) || errors.Is(err, imaging.ErrFrameTooLarge) {
			s.writeError(w, r, "decode frame", err)
			return
		}
		jsonError(w, s.logger, http.StatusBadRequest, "invalid image")
		return
	}

	seq, err := sess.PushFrame(img)
	if err != nil {
		s.writeError(w, r, "push frame", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusAccepted, map[string]uint64{"seq": seq})
}

// handleSubmitCode feeds a typed code through the scanner.
func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req submitCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.SubmitCode(req.Code); err != nil {
		s.writeError(w, r, "submit code", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDecidePrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var d session.Decision
	if err := decodeJSON(w, r, &d); err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.Decide(r.PathValue("promptID"), d); err != nil {
		s.writeError(w, r, "decide prompt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionEvents streams session events as SSE. Each event is written as
// "event: <type>" followed by a JSON data line. The stream starts with the
// current state and ends with a "done" event when the session stops.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("failed to clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, string(session.EventState), sess.Info()); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				if err := writeEvent(w, rc, "done", struct{}{}); err != nil {
					s.logger.Debug("write done event failed", "session_id", sess.ID, "error", err)
				}
				return
			}
			if err := writeEvent(w, rc, string(ev.Type), ev.Data); err != nil {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, rc *http.ResponseController, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return rc.Flush()
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	reader, err := sess.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.writeError(w, r, "get snapshot", err)
		return
	}
	defer closeWithLog(reader, "snapshot reader", s.logger)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write snapshot failed", "session_id", sess.ID, "error", err)
	}
}
