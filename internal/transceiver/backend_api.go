package transceiver

import (
	"context"
	"net/url"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/backend"
)

// Backend API paths, relative to the configured base URL.
const (
	PathNewValue     = "/esp/sensor/value/new"
	PathUpdateValue  = "/esp/sensor/value/update"
	PathDeviceConfig = "/esp/sensor/byespname"
)

// APIBackend implements ReadingBackend and ConfigSource over the HTTP API.
//
// Errors come from backend.Client: a non-2xx answer wraps
// ErrBackendRejected and no answer at all wraps ErrBackendUnreachable.
type APIBackend struct {
	client *backend.Client
}

// NewAPIBackend wraps a backend client.
func NewAPIBackend(client *backend.Client) *APIBackend {
	return &APIBackend{client: client}
}

// CreateReading POSTs the reading to the new-value endpoint.
// The reading is sent with its id (0 or less) so the backend can tell it is new.
func (b *APIBackend) CreateReading(ctx context.Context, r Reading) (Ack, error) {
	var ack Ack
	err := b.client.PostJSON(ctx, PathNewValue, r, &ack)
	return ack, err
}

// UpdateReading PUTs the reading to the update endpoint.
func (b *APIBackend) UpdateReading(ctx context.Context, r Reading) (Ack, error) {
	var ack Ack
	err := b.client.PutJSON(ctx, PathUpdateValue, r, &ack)
	return ack, err
}

// FetchDeviceConfig returns the configuration items for device, in server order.
func (b *APIBackend) FetchDeviceConfig(ctx context.Context, device string) ([]DeviceConfigItem, error) {
	var items []DeviceConfigItem
	if err := b.client.GetJSON(ctx, PathDeviceConfig, url.Values{"name": {device}}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// HealthCheck reports whether the backend is reachable.
func (b *APIBackend) HealthCheck(ctx context.Context) error {
	return b.client.HealthCheck(ctx)
}
