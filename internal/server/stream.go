package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"scrumgame/internal/domain"
	"scrumgame/internal/events"
)

// heartbeatInterval is the interval between SSE keep-alive comments.
const heartbeatInterval = 20 * time.Second

type sseFrame struct {
	ID   string
	Name string
	Data any
}

func (a *api) registerStreams(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "projects/{project_id}/events/stream"), a.handleEventStream)
	r.Get(path.Join(basePath, "projects/{project_id}/meetings/{meeting_type}/stream"), a.handleMeetingStream)
}

// handleEventStream streams later project events visible to the caller.
func (a *api) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sub, err := a.engine.SubscribeEvents(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		respondStatusError(w, handleError(err))
		return
	}
	defer a.engine.UnsubscribeEvents(sub)
	serveStream(w, r, sub, func(e domain.Event) sseFrame {
		return sseFrame{ID: e.ID, Name: e.Type, Data: eventResponse(e)}
	})
}

// handleMeetingStream streams snapshots of the project's meetings of one type.
func (a *api) handleMeetingStream(w http.ResponseWriter, r *http.Request) {
	sub, err := a.engine.MeetingUpdates(r.Context(), chi.URLParam(r, "project_id"), meetingType(chi.URLParam(r, "meeting_type")))
	if err != nil {
		respondStatusError(w, handleError(err))
		return
	}
	defer a.engine.UnsubscribeMeetings(sub)
	serveStream(w, r, sub, func(m domain.Meeting) sseFrame {
		return sseFrame{ID: m.ID + "@" + m.UpdatedAt.UTC().Format(time.RFC3339Nano), Name: string(m.Type), Data: m}
	})
}

func serveStream[T any](w http.ResponseWriter, r *http.Request, sub *events.Subscription[T], frame func(T) sseFrame) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondStatusError(w, newAPIError(http.StatusInternalServerError, "", "streaming not supported", nil))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case v, ok := <-sub.Values():
			if !ok {
				return
			}
			writeSSE(w, frame(v))
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, f sseFrame) {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\n", f.ID)
	fmt.Fprintf(w, "event: %s\n", f.Name)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
