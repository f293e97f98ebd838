package models

import "time"

const (
	SinkStatusPending = "pending"
	SinkStatusSuccess = "success"
	SinkStatusFailed  = "failed"
	SinkStatusSkipped = "skipped"
)

const (
	BatchStatusCommitted = "committed"
	BatchStatusFailed    = "failed"
)

// SinkOutcome is the per-sink result of dispatching one batch.
type SinkOutcome struct {
	Sink       string    `json:"sink"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// CommitReport records what happened to a micro-batch so partial dual-sink failures can be
// reconciled by an operator.
type CommitReport struct {
	BatchID                string         `json:"batch_id"`
	Status                 string         `json:"status"`
	Records                int            `json:"records"`
	TriggerDatetimeCreated int64          `json:"trigger_datetime_created"`
	Sinks                  []*SinkOutcome `json:"sinks"`
	Offsets                []OffsetRange  `json:"offsets,omitempty"`
	StartedAt              time.Time      `json:"started_at"`
	FinishedAt             time.Time      `json:"finished_at"`
}

// OffsetRange describes the source records a batch was built from.
type OffsetRange struct {
	Topic     string `json:"topic"`
	Partition int    `json:"partition"`
	First     int64  `json:"first"`
	Last      int64  `json:"last"`
}

func (r *CommitReport) Outcome(sink string) *SinkOutcome {
	for _, o := range r.Sinks {
		if o.Sink == sink {
			return o
		}
	}
	return nil
}

func (r *CommitReport) Committed() bool {
	return r.Status == BatchStatusCommitted
}

// OffsetRanges summarises the topic partitions covered by a polled batch.
func OffsetRanges(batch []RawMessage) []OffsetRange {
	type tp struct {
		topic     string
		partition int
	}
	idx := make(map[tp]int)
	var out []OffsetRange
	for _, m := range batch {
		k := tp{m.Topic, m.Partition}
		i, ok := idx[k]
		if !ok {
			idx[k] = len(out)
			out = append(out, OffsetRange{Topic: m.Topic, Partition: m.Partition, First: m.Offset, Last: m.Offset})
			continue
		}
		if m.Offset < out[i].First {
			out[i].First = m.Offset
		}
		if m.Offset > out[i].Last {
			out[i].Last = m.Offset
		}
	}
	return out
}
