package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	rdb            *redis.Client
	contestService *service.ContestService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	contestService *service.ContestService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		contestService: contestService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// GetViolations godoc
// GET /api/v1/admin/contests/:contest_id/violations
// Returns per-student, per-category violation counts.
func (h *MonitorHandler) GetViolations(c *gin.Context) {
	contestID, err := uuid.Parse(c.Param("contest_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	progress, err := h.monitorService.GetContestProgress(c.Request.Context(), contestID)
	if err != nil {
		h.log.Error().Err(err).Str("contest_id", contestID.String()).Msg("Failed to load violations")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, progress)
}

// MonitorContestSSE godoc
// GET /api/v1/admin/contests/:contest_id/monitor
// Streams a snapshot, then live violation/finish events and periodic refreshes.
func (h *MonitorHandler) MonitorContestSSE(c *gin.Context) {
	contestID, err := uuid.Parse(c.Param("contest_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	paper, err := h.contestService.Paper(reqCtx, contestID.String())
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrContestNotFound)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	totalQuestions := paper.TotalQuestions()
	h.sendProgress(c, reqCtx, contestID, "snapshot", gin.H{
		"id":              contestID.String(),
		"title":           paper.Title,
		"mode":            paper.Mode,
		"total_questions": totalQuestions,
	})

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ContestMonitorChannel(contestID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until something has happened on the channel.
	dirty := false

	h.log.Info().Str("contest_id", contestID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("contest_id", contestID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSE(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendProgress(c, reqCtx, contestID, "refresh", nil)

		case <-keepAliveTicker.C:
			writeSSE(c, pingPayload)
		}
	}
}

// sendProgress loads the monitor board with a scoped timeout and writes it as
// one SSE event.
func (h *MonitorHandler) sendProgress(c *gin.Context, parent context.Context, contestID uuid.UUID, kind string, contest gin.H) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetContestProgress(ctx, contestID)
	if err != nil {
		h.log.Warn().Err(err).Str("contest_id", contestID.String()).Msg("Failed to fetch contest progress")
		if kind != "snapshot" {
			return
		}
		progress = &service.ContestProgress{ContestID: contestID, Students: []service.StudentProgress{}}
	}

	event := gin.H{"type": kind, "data": progress}
	if contest != nil {
		event["contest"] = contest
	}
	c.SSEvent("message", event)
	c.Writer.Flush()
}

func writeSSE(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
