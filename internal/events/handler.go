package events

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const keepAliveInterval = 25 * time.Second

// SSEHandler streams broker events. Clients may filter with
// ?tags=name1,name2 and ?tab=<tab id>.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var tagFilter map[string]bool
		if q := r.URL.Query().Get("tags"); q != "" {
			tagFilter = make(map[string]bool)
			for _, t := range strings.Split(q, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tagFilter[t] = true
				}
			}
		}
		tabFilter := r.URL.Query().Get("tab")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if tagFilter != nil && !tagFilter[evt.Tag] {
					continue
				}
				if tabFilter != "" && evt.TabID != tabFilter {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Tag, evt.payload())
				flusher.Flush()
			}
		}
	}
}
