package models

import "time"

// RawMessage is one record polled from the source topic. It is consumed once by the decoder.
type RawMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Headers   map[string]string
}
