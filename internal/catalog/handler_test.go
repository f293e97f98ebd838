package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"promopush/internal/logger"
	"promopush/pkg/models"
)

type mockReloader struct {
	mock.Mock
	current *Catalog
}

func (m *mockReloader) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockReloader) Current() *Catalog { return m.current }

func TestHandleControlEvent(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		wantReload bool
	}{
		{
			name:       "catalog refresh reloads",
			value:      `{"event_type":"catalog_refresh","service_type":"catalog","action":"reload"}`,
			wantReload: true,
		},
		{
			name:  "other event type ignored",
			value: `{"event_type":"rules_update","service_type":"catalog"}`,
		},
		{
			name:  "other service ignored",
			value: `{"event_type":"catalog_refresh","service_type":"filtering"}`,
		},
		{
			name:  "missing fields ignored",
			value: `{"action":"reload"}`,
		},
		{
			name:  "malformed payload skipped",
			value: `not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockReloader{}
			if tt.wantReload {
				r.On("Reload", mock.Anything).Return(nil).Once()
			}

			err := NewHandler(r, logger.NopLogger()).HandleControlEvent(context.Background(), models.RawMessage{Value: []byte(tt.value)})
			require.NoError(t, err)
			r.AssertExpectations(t)
			if !tt.wantReload {
				r.AssertNotCalled(t, "Reload", mock.Anything)
			}
		})
	}
}

func TestHandleControlEventReloadError(t *testing.T) {
	r := &mockReloader{}
	r.On("Reload", mock.Anything).Return(errors.New("db down"))

	err := NewHandler(r, logger.NopLogger()).HandleControlEvent(context.Background(), models.RawMessage{
		Value: []byte(`{"event_type":"catalog_refresh","service_type":"catalog"}`),
	})
	assert.EqualError(t, err, "db down")
}

func TestHandleControlEventSkipsStaleRequest(t *testing.T) {
	loaded := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &mockReloader{current: Build(nil, loaded)}

	err := NewHandler(r, logger.NopLogger()).HandleControlEvent(context.Background(), models.RawMessage{
		Value: []byte(`{"event_type":"catalog_refresh","service_type":"catalog","timestamp":"2024-05-01T11:00:00Z"}`),
	})
	require.NoError(t, err)
	r.AssertNotCalled(t, "Reload", mock.Anything)
}
