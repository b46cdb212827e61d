package event

import "time"

// Base holds the fields shared by every event travelling through the
// pipeline
type Base struct {
	Symbol  string    `json:"symbol"`
	Time    time.Time `json:"timestamp"`
	Reasons []string  `json:"reasons,omitempty"`
}
