package saveflow

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// BeaconSender is the fire-and-forget delivery primitive used on teardown,
// when ordinary acknowledged requests are no longer guaranteed to complete.
// Send must not block the caller and carries no delivery confirmation.
type BeaconSender interface {
	Send(entityID string, payload []byte)
}

// beaconPayload is the body of a teardown save.
type beaconPayload struct {
	EntityID     string `json:"entity_id"`
	OwnerID      string `json:"owner_id,omitempty"`
	Content      string `json:"content"`
	SavedAtMilli int64  `json:"saved_at_ms"`
}

const beaconTimeout = 5 * time.Second

// HTTPBeacon posts teardown saves to the sheet API's beacon endpoint from a
// detached goroutine. Failures are logged and otherwise ignored; the local
// draft remains authoritative until a confirmed remote save.
type HTTPBeacon struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPBeacon constructs a beacon client. token may be empty for
// unauthenticated deployments.
func NewHTTPBeacon(baseURL, token string, logger *zap.Logger) *HTTPBeacon {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPBeacon{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: beaconTimeout},
		logger:  logger,
	}
}

// Send posts the payload without waiting for the result.
func (b *HTTPBeacon) Send(entityID string, payload []byte) {
	url := fmt.Sprintf("%s/sheets/%s/beacon", b.baseURL, entityID)
	body := make([]byte, len(payload))
	copy(body, payload)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			b.logger.Warn("beacon request build failed", zap.Error(err))
			return
		}
		request.Header.Set("Content-Type", "application/json")
		if b.token != "" {
			request.Header.Set("Authorization", "Bearer "+b.token)
		}
		response, err := b.client.Do(request)
		if err != nil {
			b.logger.Warn("beacon delivery failed", zap.String("entity_id", entityID), zap.Error(err))
			return
		}
		response.Body.Close()
	}()
}

// NopBeacon discards teardown saves. Used where no remote endpoint exists.
type NopBeacon struct{}

// Send discards the payload.
func (NopBeacon) Send(string, []byte) {}
