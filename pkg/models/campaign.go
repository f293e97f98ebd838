package models

import "time"

type CampaignEvent struct {
	RestaurantID            string `json:"restaurant_id"`
	AdvCampaignID           string `json:"adv_campaign_id"`
	AdvCampaignContent      string `json:"adv_campaign_content"`
	AdvCampaignOwner        string `json:"adv_campaign_owner"`
	AdvCampaignOwnerContact string `json:"adv_campaign_owner_contact"`
	DatetimeStart           *int64 `json:"datetime_start"`
	DatetimeEnd             *int64 `json:"datetime_end"`
	DatetimeCreated         *int64 `json:"datetime_created"`
}

// SubscriberRow mirrors subscribers_restaurants(id, client_id, restaurant_id).
type SubscriberRow struct {
	ID           int64  `json:"id"`
	ClientID     string `json:"client_id"`
	RestaurantID string `json:"restaurant_id"`
}

// EnrichedRecord is one (event, subscriber) pair produced by the join.
// Feedback only exists on the store side and is never encoded.
type EnrichedRecord struct {
	RestaurantID            string     `json:"restaurant_id"`
	AdvCampaignID           string     `json:"adv_campaign_id"`
	AdvCampaignContent      string     `json:"adv_campaign_content"`
	AdvCampaignOwner        string     `json:"adv_campaign_owner"`
	AdvCampaignOwnerContact string     `json:"adv_campaign_owner_contact"`
	DatetimeStart           *int64     `json:"datetime_start"`
	DatetimeEnd             *int64     `json:"datetime_end"`
	DatetimeCreated         *time.Time `json:"datetime_created"`
	SubscriberID            int64      `json:"subscriber_id"`
	ClientID                string     `json:"client_id"`
	TriggerDatetimeCreated  int64      `json:"trigger_datetime_created"`
	Feedback                *string    `json:"-"`
}

// EventTime reports the record's event time and whether it has one.
func (r EnrichedRecord) EventTime() (time.Time, bool) {
	if r.DatetimeCreated == nil {
		return time.Time{}, false
	}
	return *r.DatetimeCreated, true
}

// FeedbackRow is the subscribers_feedback row written for every dispatched record.
type FeedbackRow struct {
	EnrichedRecord
}

// FeedbackColumns lists subscribers_feedback columns in the order Values returns them.
var FeedbackColumns = []string{
	"restaurant_id",
	"adv_campaign_id",
	"adv_campaign_content",
	"adv_campaign_owner",
	"adv_campaign_owner_contact",
	"adv_campaign_datetime_start",
	"adv_campaign_datetime_end",
	"datetime_created",
	"subscriber_id",
	"client_id",
	"trigger_datetime_created",
	"feedback",
}

func NewFeedbackRow(r EnrichedRecord) FeedbackRow {
	return FeedbackRow{EnrichedRecord: r}
}

// Values returns the row in FeedbackColumns order with nil for SQL NULL.
func (r FeedbackRow) Values() []interface{} {
	return []interface{}{
		r.RestaurantID,
		r.AdvCampaignID,
		r.AdvCampaignContent,
		r.AdvCampaignOwner,
		r.AdvCampaignOwnerContact,
		nullableInt64(r.DatetimeStart),
		nullableInt64(r.DatetimeEnd),
		nullableTime(r.DatetimeCreated),
		r.SubscriberID,
		r.ClientID,
		r.TriggerDatetimeCreated,
		nullableString(r.Feedback),
	}
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
