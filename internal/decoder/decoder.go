package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"promopush/pkg/models"
	"promopush/pkg/parallel"
)

var (
	errInvalidUTF8 = errors.New("payload is not valid UTF-8")
	errNotObject   = errors.New("payload is not a JSON object")
	errNULByte     = errors.New("string field contains a NUL character")
)

// wireFields lists the exact keys wireEvent binds. goccy/go-json folds case when matching
// fields, so keys are checked against this set first.
var wireFields = map[string]bool{
	"restaurant_id":               true,
	"adv_campaign_id":             true,
	"adv_campaign_content":        true,
	"adv_campaign_owner":          true,
	"adv_campaign_owner_contact":  true,
	"datetime_start":              true,
	"datetime_end":                true,
	"adv_campaign_datetime_start": true,
	"adv_campaign_datetime_end":   true,
	"datetime_created":            true,
}

// checkKeys rejects keys that only match a schema field by case. Unrelated extra keys are
// ignored.
func checkKeys(payload []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}
	for key := range fields {
		if wireFields[key] {
			continue
		}
		lower := strings.ToLower(key)
		if wireFields[lower] {
			return fmt.Errorf("field %q must be spelled %q", key, lower)
		}
	}
	return nil
}

// wireEvent accepts both the canonical window field names and the adv_campaign_ prefixed
// names used by older producers.
type wireEvent struct {
	RestaurantID             string `json:"restaurant_id"`
	AdvCampaignID            string `json:"adv_campaign_id"`
	AdvCampaignContent       string `json:"adv_campaign_content"`
	AdvCampaignOwner         string `json:"adv_campaign_owner"`
	AdvCampaignOwnerContact  string `json:"adv_campaign_owner_contact"`
	DatetimeStart            *int64 `json:"datetime_start"`
	DatetimeEnd              *int64 `json:"datetime_end"`
	AdvCampaignDatetimeStart *int64 `json:"adv_campaign_datetime_start"`
	AdvCampaignDatetimeEnd   *int64 `json:"adv_campaign_datetime_end"`
	DatetimeCreated          *int64 `json:"datetime_created"`
}

// Decode parses one raw record. Absent or null fields decode to their zero value or nil.
func Decode(raw models.RawMessage) (models.CampaignEvent, error) {
	if !utf8.Valid(raw.Value) {
		return models.CampaignEvent{}, newSchemaMismatch(raw.Topic, raw.Partition, raw.Offset, errInvalidUTF8)
	}

	trimmed := bytes.TrimSpace(raw.Value)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.CampaignEvent{}, newSchemaMismatch(raw.Topic, raw.Partition, raw.Offset, errNotObject)
	}

	if err := checkKeys(trimmed); err != nil {
		return models.CampaignEvent{}, newSchemaMismatch(raw.Topic, raw.Partition, raw.Offset, err)
	}

	var w wireEvent
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return models.CampaignEvent{}, newSchemaMismatch(raw.Topic, raw.Partition, raw.Offset, err)
	}
	// Postgres text columns reject 0x00.
	for _, v := range []string{w.RestaurantID, w.AdvCampaignID, w.AdvCampaignContent, w.AdvCampaignOwner, w.AdvCampaignOwnerContact} {
		if strings.IndexByte(v, 0) >= 0 {
			return models.CampaignEvent{}, newSchemaMismatch(raw.Topic, raw.Partition, raw.Offset, errNULByte)
		}
	}

	return models.CampaignEvent{
		RestaurantID:            w.RestaurantID,
		AdvCampaignID:           w.AdvCampaignID,
		AdvCampaignContent:      w.AdvCampaignContent,
		AdvCampaignOwner:        w.AdvCampaignOwner,
		AdvCampaignOwnerContact: w.AdvCampaignOwnerContact,
		DatetimeStart:           firstSet(w.DatetimeStart, w.AdvCampaignDatetimeStart),
		DatetimeEnd:             firstSet(w.DatetimeEnd, w.AdvCampaignDatetimeEnd),
		DatetimeCreated:         w.DatetimeCreated,
	}, nil
}

func firstSet(canonical, alias *int64) *int64 {
	if canonical != nil {
		return canonical
	}
	return alias
}

type Decoder struct {
	workers int
}

func New(workers int) *Decoder {
	return &Decoder{workers: workers}
}

type result struct {
	event models.CampaignEvent
	err   *DecodeError
}

// DecodeBatch decodes raws in parallel. Decoded events keep arrival order; rejected records
// are returned separately and never fail the batch. err is only set when ctx ends.
func (d *Decoder) DecodeBatch(ctx context.Context, raws []models.RawMessage) (events []models.CampaignEvent, rejected []*DecodeError, err error) {
	results, err := parallel.Map(ctx, d.workers, raws, func(_ context.Context, _ int, raw models.RawMessage) (result, error) {
		ev, decErr := Decode(raw)
		if decErr != nil {
			var de *DecodeError
			errors.As(decErr, &de)
			return result{err: de}, nil
		}
		return result{event: ev}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	events = make([]models.CampaignEvent, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			rejected = append(rejected, r.err)
			continue
		}
		events = append(events, r.event)
	}
	return events, rejected, nil
}
