package models

import "time"

// OutboxRecord marks a run as ready to enter the pipeline. It is written in
// the same transaction as its run, so the two are never observed
// inconsistently, and it is flipped to processed exclusively by the relay.
type OutboxRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}
