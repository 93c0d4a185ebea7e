package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// HTTP posts results to an external scoring endpoint. Any non-2xx status is
// a failed submission.
type HTTP struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

func NewHTTP(endpoint string, timeout time.Duration, log zerolog.Logger) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.With().Str("component", "result_http").Logger(),
	}
}

func (h *HTTP) Submit(ctx context.Context, p *model.SubmissionPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scoring endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	h.log.Info().
		Str("contest_id", p.ContestID).
		Int("student_id", p.StudentID).
		Int("status", resp.StatusCode).
		Msg("Result delivered")
	return nil
}
