package sui_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slyncl12/luckyvault/config"
	"github.com/slyncl12/luckyvault/internal/adapters/sui"
	"github.com/slyncl12/luckyvault/internal/domain"
)

var testLedgerCfg = config.LedgerConfig{
	PackageID: "0xpkg",
	Module:    "lottery",
	PoolID:    "0xpool",
	CoinType:  "0xc::usdc::USDC",
}

type rpcCall struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func withdrawalEventJSON(id string, at time.Time, usd float64) map[string]any {
	return map[string]any{
		"type": "0xpkg::lottery::WithdrawalRequestedEvent",
		"parsedJson": map[string]any{
			"request_id": id,
			"user":       "0xuser",
			"amount":     fmt.Sprintf("%d", uint64(domain.FromUSD(usd))),
		},
		"timestampMs":       fmt.Sprintf("%d", at.UnixMilli()),
		"transactionDigest": "digest-" + id,
	}
}

func eventPageResponse(events []map[string]any, hasNext bool) []byte {
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result": map[string]any{
			"data":        events,
			"nextCursor":  map[string]any{"txDigest": "cursor", "eventSeq": "0"},
			"hasNextPage": hasNext,
		},
	})
	return body
}

func TestQueryWithdrawalRequests_PagesUntilCrossingSince(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	since := now.Add(-time.Hour)

	pages := [][]byte{
		eventPageResponse([]map[string]any{
			withdrawalEventJSON("0xreq1", now, 10),
			withdrawalEventJSON("0xreq2", now.Add(-10*time.Minute), 20),
		}, true),
		eventPageResponse([]map[string]any{
			withdrawalEventJSON("0xreq3", now.Add(-30*time.Minute), 30),
			withdrawalEventJSON("0xancient", now.Add(-2*time.Hour), 40),
		}, true),
	}

	calls := 0
	var secondCursor any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcCall
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "suix_queryEvents", req.Method)
		if calls >= len(pages) {
			assert.Fail(t, "queried past the crossing page")
			w.Write(eventPageResponse(nil, false))
			return
		}

		if calls == 1 {
			secondCursor = req.Params[1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(pages[calls])
		calls++
	}))
	defer srv.Close()

	ledger := sui.NewLedger(sui.NewClient(srv.URL), nil, testLedgerCfg)
	events, err := ledger.QueryWithdrawalRequests(context.Background(), since)
	require.NoError(t, err)

	// Every event inside the window made it across the page boundary; the
	// one older than since did not.
	require.Len(t, events, 3)
	assert.Equal(t, "0xreq1", events[0].RequestID)
	assert.Equal(t, "0xreq2", events[1].RequestID)
	assert.Equal(t, "0xreq3", events[2].RequestID)
	assert.Equal(t, domain.FromUSD(30), events[2].Amount)
	assert.True(t, events[2].Timestamp.Equal(now.Add(-30*time.Minute)))

	assert.Equal(t, 2, calls)
	assert.NotNil(t, secondCursor, "second page must carry the RPC cursor")
}

func TestQueryWithdrawalRequests_SinglePageStopsAtLastPage(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write(eventPageResponse([]map[string]any{
			withdrawalEventJSON("0xreq1", now, 10),
		}, false))
	}))
	defer srv.Close()

	ledger := sui.NewLedger(sui.NewClient(srv.URL), nil, testLedgerCfg)
	events, err := ledger.QueryWithdrawalRequests(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)

	assert.Len(t, events, 1)
	assert.Equal(t, 1, calls)
}

func TestQueryWithdrawalRequests_ErrorsInsteadOfTruncating(t *testing.T) {
	// The node keeps reporting more pages inside the scan window. A truncated
	// result would let the fulfiller advance its cursor past unseen requests,
	// so the scan must fail instead of returning a partial batch.
	now := time.Now().UTC()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		at := now.Add(-time.Duration(calls) * time.Second)
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write(eventPageResponse([]map[string]any{
			withdrawalEventJSON(fmt.Sprintf("0xreq%d", calls), at, 10),
		}, true))
	}))
	defer srv.Close()

	ledger := sui.NewLedger(sui.NewClient(srv.URL), nil, testLedgerCfg)
	_, err := ledger.QueryWithdrawalRequests(context.Background(), now.Add(-time.Hour))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not exhausted")
}
