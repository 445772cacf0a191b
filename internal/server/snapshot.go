package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// GetSnapshot returns the derived queue. view narrows it to one bucket.
func (s *Server) GetSnapshot(c *gin.Context) {
	if s.aggregator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	snap := s.aggregator.Snapshot()
	switch strings.ToLower(strings.TrimSpace(c.Query("view"))) {
	case "", "all":
		c.JSON(http.StatusOK, gin.H{"data": snap})
	case "active":
		c.JSON(http.StatusOK, gin.H{"revision": snap.Revision, "data": snap.Active})
	case "history":
		c.JSON(http.StatusOK, gin.H{"revision": snap.Revision, "data": snap.History})
	default:
		AbortWithError(c, newValidationError("view", "invalid_view", "view must be all, active or history"))
	}
}

// StreamSnapshots pushes every recomputed snapshot as a server-sent event.
func (s *Server) StreamSnapshots(c *gin.Context) {
	if s.aggregator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	subscription, current := s.aggregator.Subscribe()
	defer subscription.Close()

	flusher, ok := startEventStream(c)
	if !ok {
		return
	}

	if err := writeEvent(c.Writer, "snapshot", current); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-subscription.Updates():
			if !open {
				return
			}
			if err := writeEvent(c.Writer, "snapshot", snap); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func startEventStream(c *gin.Context) (http.Flusher, bool) {
	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return nil, false
	}
	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return nil, false
	}
	return flusher, true
}

func writeEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
