package pendle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/core/v1/markets/all", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets": [
			{
				"address": "0xabc",
				"name": "PT-sUSDe",
				"chainId": 1,
				"expiry": "2026-03-26T00:00:00.000Z",
				"yt": "0xyt",
				"details": {
					"totalTvl": 1500000,
					"tradingVolume": 42000,
					"aggregatedApy": 0.125
				}
			},
			{
				"name": "no address, dropped",
				"details": {"tradingVolume": 9000}
			},
			{
				"address": "0xdef",
				"name": "top-level fallbacks",
				"chainId": "42161",
				"liquidity": 0,
				"volume24h": 0,
				"impliedApy": 5.5
			}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2, "the entry without an address is dropped")

	m := markets[0]
	assert.Equal(t, "0xabc", m.Address)
	assert.Equal(t, "PT-sUSDe", m.Name)
	require.NotNil(t, m.ChainID)
	assert.Equal(t, int64(1), *m.ChainID)
	require.NotNil(t, m.Expiry)
	assert.Equal(t, time.Date(2026, 3, 26, 0, 0, 0, 0, time.UTC), m.Expiry.UTC())
	assert.Equal(t, 1_500_000.0, *m.TVL)
	assert.Equal(t, 42_000.0, *m.Volume24h)
	assert.Equal(t, 12.5, *m.ImpliedAPY, "fractional APY is scaled to percent")
	assert.Equal(t, "1-0xyt", m.YTAddress)
	assert.NotEmpty(t, m.Raw)

	m = markets[1]
	assert.Equal(t, "0xdef", m.Address)
	require.NotNil(t, m.ChainID)
	assert.Equal(t, int64(42161), *m.ChainID, "quoted chain id is accepted")
	require.NotNil(t, m.TVL)
	assert.Equal(t, 0.0, *m.TVL, "zero liquidity is a present value")
	require.NotNil(t, m.Volume24h)
	assert.Equal(t, 0.0, *m.Volume24h)
	assert.Equal(t, 5.5, *m.ImpliedAPY, "values >= 1 are already percent")
}

func TestClient_FetchMarketsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"address": "0xabc", "name": "A"}]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "0xabc", markets[0].Address)
	assert.Nil(t, markets[0].Volume24h)
}

func TestClient_FetchMarketsRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"markets": []}`))
	}))
	defer srv.Close()

	client := NewClient(
		WithBaseURL(srv.URL),
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
	)
	markets, err := client.FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, markets)
	assert.Equal(t, 3, calls)
}

func TestClient_FetchMarketsDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRetryDelay(time.Millisecond))
	_, err := client.FetchMarkets(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestYTAddress(t *testing.T) {
	chain := int64(1)
	assert.Equal(t, "1-0xyt", ytAddress("0xyt", &chain))
	assert.Equal(t, "42161-0xyt", ytAddress("42161-0xyt", &chain), "already-qualified form is kept")
	assert.Equal(t, "0xyt", ytAddress("0xyt", nil))
}
