package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	protocol "github.com/influxdata/line-protocol"

	"github.com/relayhq/botgate/internal/domain"
)

// eventMeasurement is the line-protocol measurement name for lifecycle
// events.
const eventMeasurement = "gateway_request"

// HTTPSink flushes event batches to a time-series write endpoint as
// gzip-compressed influx line protocol.
type HTTPSink struct {
	url    string
	token  string
	client *http.Client
}

var _ Sink = (*HTTPSink)(nil)

// NewHTTPSink creates a sink posting to the given write URL.
func NewHTTPSink(url, token string) *HTTPSink {
	return &HTTPSink{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Flush implements Sink.
func (s *HTTPSink) Flush(ctx context.Context, events []*domain.LifecycleEvent) error {
	body, err := encodeLineProtocol(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build flush request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	if s.token != "" {
		req.Header.Set("Authorization", "Token "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("flush rejected: %s", resp.Status)
	}
	return nil
}

// Close implements Sink.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func encodeLineProtocol(events []*domain.LifecycleEvent) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := protocol.NewEncoder(zw)
	enc.SetFieldTypeSupport(protocol.UintSupport)

	for _, event := range events {
		tags := map[string]string{
			"type":      string(event.Type),
			"tenant_id": event.TenantID,
			"method":    event.Method,
			"bucket":    event.Bucket,
		}
		fields := map[string]interface{}{
			"route": event.Route,
			"count": 1,
		}
		if event.Status != 0 {
			fields["status"] = strconv.Itoa(event.Status)
			fields["status_text"] = event.StatusText
		}

		m, err := protocol.New(eventMeasurement, tags, fields, event.Timestamp)
		if err != nil {
			return nil, err
		}
		if _, err := enc.Encode(m); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
