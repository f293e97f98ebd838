package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func sampleRecord() EnrichedRecord {
	created := time.Unix(150, 0).UTC()
	feedback := "liked it"
	return EnrichedRecord{
		RestaurantID:            "R1",
		AdvCampaignID:           "C1",
		AdvCampaignContent:      "two for one",
		AdvCampaignOwner:        "Owner",
		AdvCampaignOwnerContact: "owner@x",
		DatetimeStart:           int64Ptr(100),
		DatetimeEnd:             int64Ptr(200),
		DatetimeCreated:         &created,
		SubscriberID:            7,
		ClientID:                "a@x",
		TriggerDatetimeCreated:  160,
		Feedback:                &feedback,
	}
}

func TestEnrichedRecordRoundTripDropsFeedback(t *testing.T) {
	rec := sampleRecord()

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "feedback")
	assert.Contains(t, fields, "trigger_datetime_created")

	var back EnrichedRecord
	require.NoError(t, json.Unmarshal([]byte(`{"feedback":"ignored",`+string(data[1:])), &back))
	assert.Nil(t, back.Feedback)

	rec.Feedback = nil
	assert.Equal(t, rec, back)
}

func TestEventTime(t *testing.T) {
	rec := sampleRecord()
	ts, ok := rec.EventTime()
	assert.True(t, ok)
	assert.Equal(t, int64(150), ts.Unix())

	rec.DatetimeCreated = nil
	_, ok = rec.EventTime()
	assert.False(t, ok)
}

func TestFeedbackRowValues(t *testing.T) {
	rec := sampleRecord()
	rec.Feedback = nil
	rec.DatetimeEnd = nil

	values := NewFeedbackRow(rec).Values()
	require.Len(t, values, len(FeedbackColumns))
	assert.Equal(t, "R1", values[0])
	assert.Equal(t, int64(100), values[5])
	assert.Nil(t, values[6])
	assert.Equal(t, "a@x", values[9])
	assert.Nil(t, values[len(values)-1])
}
