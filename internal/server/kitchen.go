package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
)

var kitchenTopics = map[string]bool{
	bridge.TopicOrders:   true,
	bridge.TopicJobs:     true,
	bridge.TopicDelivery: true,
	bridge.TopicHandoff:  true,
}

func (s *Server) GetKitchenStatus(c *gin.Context) {
	if s.bridge == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     s.bridge.State().String(),
		"queue_len": s.bridge.QueueLen(),
		"transport": s.cfg.Kitchen.Transport,
	})
}

// StreamKitchenEvents relays the in-process broadcast of a kitchen topic,
// backlog first.
func (s *Server) StreamKitchenEvents(c *gin.Context) {
	if s.bridge == nil || s.bridge.Local() == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	topic := strings.ToLower(strings.TrimSpace(c.Param("topic")))
	if !kitchenTopics[topic] {
		AbortWithError(c, newValidationError("topic", "invalid_topic", "unknown kitchen topic"))
		return
	}

	subscription, backlog := s.bridge.Local().Subscribe(topic)
	defer subscription.Close()

	flusher, ok := startEventStream(c)
	if !ok {
		return
	}

	for _, env := range backlog {
		if err := writeEvent(c.Writer, env.Event, env); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, open := <-subscription.Events():
			if !open {
				return
			}
			if err := writeEvent(c.Writer, env.Event, env); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString(": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
