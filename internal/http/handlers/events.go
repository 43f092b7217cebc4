package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const keepAliveInterval = 25 * time.Second

// AdsEvents streams ad lifecycle updates for one owner over server-sent
// events. The connection stays open until the client disconnects.
func (a *App) AdsEvents(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "email is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.json(w, http.StatusInternalServerError, errorResponse{Success: false, Message: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := a.Hub.Subscribe(email)
	defer sub.Close()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, open := <-sub.C:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: ad\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
