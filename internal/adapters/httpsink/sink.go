// Package httpsink posts the aggregated message corpus to an HTTP endpoint
// as a JSON array.
package httpsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/corey/tally/internal/ports"
)

// Sink uploads via HTTP POST. Implements ports.UploadSink.
type Sink struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string) *Sink {
	return &Sink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *Sink) Upload(ctx context.Context, msgs []ports.NormalizedMessage) error {
	body, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload: unexpected status %s", resp.Status)
	}
	return nil
}
