package filtering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promopush/internal/config"
	"promopush/internal/logger"
	"promopush/pkg/models"
)

func fixedClock(ts int64) Clock {
	return func() time.Time { return time.Unix(ts, 0) }
}

func TestFilterWindowOnly(t *testing.T) {
	svc, err := NewService(config.FilteringConfig{}, fixedClock(1000), logger.NopLogger())
	require.NoError(t, err)

	events := []models.CampaignEvent{
		{AdvCampaignID: "kept", DatetimeStart: i64(500), DatetimeEnd: i64(1500)},
		{AdvCampaignID: "future", DatetimeStart: i64(1500), DatetimeEnd: i64(2000)},
		{AdvCampaignID: "kept-too", DatetimeStart: i64(1000), DatetimeEnd: i64(1000)},
	}

	got := svc.Filter(context.Background(), events)
	require.Len(t, got, 2)
	assert.Equal(t, "kept", got[0].AdvCampaignID)
	assert.Equal(t, "kept-too", got[1].AdvCampaignID)
}

func TestFilterReadsClockPerEvent(t *testing.T) {
	ticks := []int64{100, 300}
	calls := 0
	clock := func() time.Time {
		ts := ticks[calls]
		calls++
		return time.Unix(ts, 0)
	}
	svc, err := NewService(config.FilteringConfig{}, clock, logger.NopLogger())
	require.NoError(t, err)

	ev := models.CampaignEvent{DatetimeStart: i64(50), DatetimeEnd: i64(200)}
	got := svc.Filter(context.Background(), []models.CampaignEvent{ev, ev})

	assert.Equal(t, 2, calls)
	assert.Len(t, got, 1)
}

func TestFilterRules(t *testing.T) {
	base := models.CampaignEvent{
		RestaurantID:     "R1",
		AdvCampaignOwner: "Ivan",
		DatetimeStart:    i64(0),
		DatetimeEnd:      i64(2000),
	}
	rules := []config.FilterRuleConfig{
		{Name: "owner_known", Expression: `adv_campaign_owner != ""`},
		{Name: "recent", Expression: `now - datetime_created < 600`},
	}

	tests := []struct {
		name    string
		onError string
		created *int64
		owner   string
		want    bool
	}{
		{"passes all rules", "deny", i64(900), "Ivan", true},
		{"rejected by rule", "deny", i64(900), "", false},
		{"too old", "deny", i64(10), "Ivan", false},
		{"eval error denied", "deny", nil, "Ivan", false},
		{"eval error allowed", "allow", nil, "Ivan", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(config.FilteringConfig{
				Rules:    rules,
				Fallback: config.FallbackConfig{OnError: tt.onError},
			}, fixedClock(1000), logger.NopLogger())
			require.NoError(t, err)
			assert.Equal(t, 2, svc.RuleCount())

			ev := base
			ev.DatetimeCreated = tt.created
			ev.AdvCampaignOwner = tt.owner
			got := svc.Filter(context.Background(), []models.CampaignEvent{ev})
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestNewServiceRejectsBadRule(t *testing.T) {
	_, err := NewService(config.FilteringConfig{
		Rules: []config.FilterRuleConfig{{Name: "broken", Expression: `restaurant_id ==`}},
	}, nil, logger.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
