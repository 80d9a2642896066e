package pendle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"pendle-watch/internal/domain"
)

// marketsResponse is the documented shape of /core/v1/markets/all. Some
// deployments have returned a bare array instead; parseMarkets accepts both.
type marketsResponse struct {
	Markets []json.RawMessage `json:"markets"`
}

// flexInt64 accepts both numeric and quoted chain ids.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse chain id %q: %w", s, err)
		}
		*f = flexInt64(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexInt64(v)
	return nil
}

// marketPayload mirrors one market object. Numeric fields are pointers so a
// present zero is distinguishable from an absent field; zero volume and tvl
// are valid data.
type marketPayload struct {
	Address string     `json:"address"`
	Name    string     `json:"name"`
	ChainID *flexInt64 `json:"chainId"`
	Chain   *flexInt64 `json:"chain"`
	Expiry  string     `json:"expiry"`
	YT      string     `json:"yt"`

	Liquidity        *float64 `json:"liquidity"`
	TotalTVL         *float64 `json:"totalTvl"`
	TVL              *float64 `json:"tvl"`
	TradingVolume    *float64 `json:"tradingVolume"`
	Volume24h        *float64 `json:"volume24h"`
	TradingVolume24h *float64 `json:"trading_volume_24h"`
	ImpliedAPY       *float64 `json:"impliedApy"`
	ImpliedAPYSnake  *float64 `json:"implied_apy"`

	Details *marketDetails `json:"details"`
}

type marketDetails struct {
	TotalTVL         *float64 `json:"totalTvl"`
	Liquidity        *float64 `json:"liquidity"`
	TVL              *float64 `json:"tvl"`
	TradingVolume    *float64 `json:"tradingVolume"`
	Volume24h        *float64 `json:"volume24h"`
	TradingVolume24h *float64 `json:"trading_volume_24h"`
	AggregatedAPY    *float64 `json:"aggregatedApy"`
	ImpliedAPY       *float64 `json:"impliedApy"`
	ImpliedAPYSnake  *float64 `json:"implied_apy"`
}

// toMarket resolves all payload-shape fallbacks into the typed snapshot
// entry. Returns nil if the payload has no address.
func (m *marketPayload) toMarket(raw json.RawMessage) *domain.Market {
	if m.Address == "" {
		return nil
	}

	out := &domain.Market{
		Address: m.Address,
		Name:    m.Name,
		Raw:     raw,
	}

	chainID := m.ChainID
	if chainID == nil {
		chainID = m.Chain
	}
	if chainID != nil {
		v := int64(*chainID)
		out.ChainID = &v
	}

	if m.Expiry != "" {
		if t, err := time.Parse(time.RFC3339, m.Expiry); err == nil {
			utc := t.UTC()
			out.Expiry = &utc
		}
	}

	d := m.Details
	if d == nil {
		d = &marketDetails{}
	}

	out.TVL = firstKnown(d.TotalTVL, d.Liquidity, d.TVL, m.Liquidity, m.TotalTVL, m.TVL)
	out.Volume24h = firstKnown(
		d.TradingVolume, d.Volume24h, d.TradingVolume24h,
		m.TradingVolume, m.Volume24h, m.TradingVolume24h,
	)

	apy := firstKnown(d.AggregatedAPY, d.ImpliedAPY, d.ImpliedAPYSnake, m.ImpliedAPY, m.ImpliedAPYSnake)
	if apy != nil {
		// Upstream reports the rate either as a fraction or as a percent;
		// values below 1 are assumed fractional.
		v := *apy
		if v < 1 {
			v *= 100
		}
		out.ImpliedAPY = &v
	}

	if m.YT != "" {
		out.YTAddress = ytAddress(m.YT, out.ChainID)
	}

	return out
}

// ytAddress normalizes the yt token reference to "chainId-address" form.
func ytAddress(yt string, chainID *int64) string {
	if bytes.ContainsRune([]byte(yt), '-') {
		return yt
	}
	if chainID != nil {
		return fmt.Sprintf("%d-%s", *chainID, yt)
	}
	return yt
}

// firstKnown returns the first non-nil value. Zero is a known value.
func firstKnown(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			v := *c
			return &v
		}
	}
	return nil
}

// parseMarkets decodes the markets payload, accepting both the enveloped
// and the bare-array response forms. Entries without an address are dropped
// individually; one bad entry does not fail the snapshot.
func parseMarkets(data []byte) ([]*domain.Market, error) {
	var raws []json.RawMessage

	var envelope marketsResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Markets != nil {
		raws = envelope.Markets
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode markets response: %w", err)
	}

	markets := make([]*domain.Market, 0, len(raws))
	for _, raw := range raws {
		var payload marketPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		if m := payload.toMarket(raw); m != nil {
			markets = append(markets, m)
		}
	}
	return markets, nil
}
