package usage

import (
	"time"

	"convo/internal/types"
)

// Counts tracks locally observed message traffic.
type Counts struct {
	Sent     int `json:"sent"`
	Received int `json:"received"`
}

// Add accumulates one exchange.
func (c *Counts) Add(sent, received int) {
	c.Sent += sent
	c.Received += received
}

// Data is the persisted usage state: the last server-reported quota
// snapshot plus local counters aggregated per session.
type Data struct {
	Version   string            `json:"version"`
	Snapshot  types.Usage       `json:"snapshot"`
	FetchedAt time.Time         `json:"fetched_at"`
	Total     Counts            `json:"total"`
	BySession map[string]Counts `json:"by_session"`
}
