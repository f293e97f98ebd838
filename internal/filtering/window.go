package filtering

import (
	"time"

	"promopush/pkg/models"
)

// Keep reports whether the campaign window contains now (inclusive on both ends).
// An event without a complete window is never actionable.
func Keep(ev models.CampaignEvent, now time.Time) bool {
	if ev.DatetimeStart == nil || ev.DatetimeEnd == nil {
		return false
	}
	ts := now.Unix()
	return *ev.DatetimeStart <= ts && ts <= *ev.DatetimeEnd
}
