package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bryanchriswhite/framepoll/internal/buffer"
	"github.com/bryanchriswhite/framepoll/internal/encode"
	"github.com/bryanchriswhite/framepoll/internal/logger"
)

// Transport-level header fields of the polling protocol
const (
	headerRefresh  = "R" // "1" forces a session refresh
	headerClientID = "I" // client/session identifier
	headerSkip     = "F" // "1" enables frame-skip delivery
)

// pollResponse is the wire record returned for every poll
type pollResponse struct {
	Frames [][]float64 `json:"Fr"`
	FPS    int         `json:"F"`
	Width  int         `json:"X"`
	Height int         `json:"Y"`
	Groups int         `json:"G"`
}

// handlePoll serves one client poll. Every client receives a gap-free,
// monotonically advancing run of frames it has not seen, restarting from the
// newest frame when its position has been evicted. Malformed requests degrade
// to an empty, well-formed batch rather than a transport error.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	s.lastRequestAt.Store(time.Now().UnixNano())

	log := logger.WithComponent("api")

	clientID := r.Header.Get(headerClientID)
	if clientID == "" {
		log.Warn().Msg("Poll without client identifier, serving empty batch")
		s.writePollResponse(w, nil)
		return
	}

	refresh := r.Header.Get(headerRefresh) == "1"
	skip := r.Header.Get(headerSkip) == "1"

	sess := s.sessions.Resolve(clientID, refresh)
	sess.Lock()

	fresh := !sess.Delivered
	var frames []buffer.Frame
	if fresh {
		frames = s.ring.Latest(s.cfg.FrameGroups)
	} else {
		var err error
		frames, err = s.ring.ReadRange(sess.LastDelivered, s.cfg.FrameGroups)
		if errors.Is(err, buffer.ErrResynchronize) {
			log.Info().
				Str("client_id", clientID).
				Uint64("last_delivered", sess.LastDelivered).
				Msg("Client position evicted, resynchronizing from newest frame")
			frames = s.ring.Latest(s.cfg.FrameGroups)
			fresh = true
		}
	}

	// Frame skip applies only to streaming deliveries, never to a fresh or
	// resynchronizing one. Skipped frames are consumed, not redelivered.
	served := frames
	if !fresh && skip && s.cfg.FrameSkip > 1 {
		served = everyNth(frames, s.cfg.FrameSkip)
	}

	if len(frames) > 0 {
		sess.LastDelivered = frames[len(frames)-1].Sequence
		sess.Delivered = true
	}
	sess.Unlock()

	// Serialization happens after the session lock is released
	s.writePollResponse(w, served)
}

// everyNth keeps the nth, 2nth, ... frames of the batch
func everyNth(frames []buffer.Frame, n int) []buffer.Frame {
	kept := make([]buffer.Frame, 0, len(frames)/n+1)
	for i := range frames {
		if (i+1)%n == 0 {
			kept = append(kept, frames[i])
		}
	}
	return kept
}

func (s *Server) writePollResponse(w http.ResponseWriter, frames []buffer.Frame) {
	resp := pollResponse{
		Frames: make([][]float64, 0, len(frames)),
		FPS:    s.cfg.FPS,
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
		Groups: s.cfg.FrameGroups,
	}
	for _, f := range frames {
		payload := encode.AppendFloats(make([]float64, 0, len(f.Pixels)*4), f.Pixels, f.Mode)
		resp.Frames = append(resp.Frames, payload)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write poll response")
	}
}
