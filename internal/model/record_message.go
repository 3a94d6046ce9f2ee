package model

import "time"

// RecordMessage is the JSON value published to Kafka for every persisted record.
type RecordMessage struct {
	Owner      string     `json:"owner"`
	Name       string     `json:"name"`
	Stars      int        `json:"stars"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	Partition  int        `json:"partition"`
	ObservedAt time.Time  `json:"observed_at"`
}

func NewRecordMessage(r Record, partition int, observedAt time.Time) RecordMessage {
	return RecordMessage{
		Owner:      r.OwnerName,
		Name:       r.EntityName,
		Stars:      r.PopularityScore,
		CreatedAt:  r.CreatedAt,
		Partition:  partition,
		ObservedAt: observedAt.UTC(),
	}
}
