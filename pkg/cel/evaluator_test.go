package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promopush/pkg/models"
)

func i64(v int64) *int64 { return &v }

func TestCompileFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{"string equality", `adv_campaign_owner == "Ivan"`, false},
		{"contains", `adv_campaign_owner_contact.contains("@")`, false},
		{"in list", `restaurant_id in ["R1", "R2"]`, false},
		{"window length", `datetime_end - datetime_start <= 86400`, false},
		{"now relative", `now - datetime_created < 3600`, false},
		{"syntax error", `adv_campaign_id ==`, true},
		{"undefined variable", `payload.status == "active"`, true},
		{"non-bool", `restaurant_id`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := eval.CompileFilter(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expr, p.Expression())
		})
	}
}

func TestProgramEval(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	ev := models.CampaignEvent{
		RestaurantID:            "R1",
		AdvCampaignOwnerContact: "owner@x",
		DatetimeStart:           i64(100),
		DatetimeEnd:             i64(200),
		DatetimeCreated:         i64(150),
	}
	now := time.Unix(160, 0)

	tests := []struct {
		expr string
		want bool
	}{
		{`restaurant_id == "R1"`, true},
		{`adv_campaign_owner_contact.endsWith("@y")`, false},
		{`now - datetime_created < 60`, true},
		{`datetime_end - datetime_start > 500`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)
			got, err := p.Eval(context.Background(), ev, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgramEvalNullFieldErrors(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	p, err := eval.CompileFilter(`datetime_created > 0`)
	require.NoError(t, err)

	_, err = p.Eval(context.Background(), models.CampaignEvent{}, time.Unix(0, 0))
	assert.Error(t, err)
}
