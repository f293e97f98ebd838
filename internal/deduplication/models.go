package deduplication

import "time"

// Key identifies identical occurrences of a campaign trigger.
type Key struct {
	RestaurantID  string
	AdvCampaignID string
	DatetimeStart int64
	HasStart      bool
	// ClientID is only set when deduplicating per subscriber.
	ClientID string
}

type Stats struct {
	StateSize    int       `json:"state_size"`
	MaxEventTime time.Time `json:"max_event_time"`
	Watermark    time.Time `json:"watermark"`
	Lag          string    `json:"watermark_lag"`
	Emitted      uint64    `json:"emitted_total"`
	Suppressed   uint64    `json:"suppressed_total"`
	Dropped      uint64    `json:"dropped_total"`
	Evicted      uint64    `json:"evicted_total"`
}

// Result summarises one Process call.
type Result struct {
	Emitted    int
	Suppressed int
	Dropped    int
	Evicted    int
}

type entry struct {
	at  time.Time
	key Key
}

func entryLess(a, b entry) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return keyLess(a.key, b.key)
}

func keyLess(a, b Key) bool {
	if a.RestaurantID != b.RestaurantID {
		return a.RestaurantID < b.RestaurantID
	}
	if a.AdvCampaignID != b.AdvCampaignID {
		return a.AdvCampaignID < b.AdvCampaignID
	}
	if a.HasStart != b.HasStart {
		return !a.HasStart
	}
	if a.DatetimeStart != b.DatetimeStart {
		return a.DatetimeStart < b.DatetimeStart
	}
	return a.ClientID < b.ClientID
}
