package domain

import (
	"encoding/json"
	"time"
)

// Market is one typed snapshot entry from the upstream markets API.
// All payload-shape fallbacks are resolved once at the fetch boundary;
// downstream code never re-derives fields from raw JSON.
type Market struct {
	Address    string
	Name       string
	ChainID    *int64
	Expiry     *time.Time
	TVL        *float64
	Volume24h  *float64
	ImpliedAPY *float64
	YTAddress  string // "chainId-address" form, empty if the payload had no yt
	Raw        json.RawMessage
}

// ProjectRef identifies a project in run reports and notifications.
type ProjectRef struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// MarketMetricPoint is one analytics sample written per project per run.
type MarketMetricPoint struct {
	Address     string
	ChainID     int64
	TimestampMs int64
	TVL         float64
	Volume24h   float64
	ImpliedAPY  float64
}
