// Package navi adapts the NAVI lending protocol behind ports.LendingMarket.
//
// Balance-affecting operations go through the ledger as move calls; the
// supply-rate quote comes from NAVI's HTTP API and is cached for a short TTL.
// Position reads are never cached: reconciliation needs fresh values.
package navi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/slyncl12/luckyvault/config"
	"github.com/slyncl12/luckyvault/internal/adapters/sui"
	"github.com/slyncl12/luckyvault/internal/domain"
)

const rateCacheTTL = 60 * time.Second

// Market implements ports.LendingMarket over NAVI's lending market.
type Market struct {
	client *sui.Client
	exec   *sui.Executor
	cfg    config.LendingConfig
	coin   string // coin type of the supplied asset
	http   *http.Client

	mu          sync.Mutex
	cachedRate  float64
	rateFetched time.Time
}

// New wires the lending adapter.
func New(client *sui.Client, exec *sui.Executor, cfg config.LendingConfig, coinType string) *Market {
	return &Market{
		client: client,
		exec:   exec,
		cfg:    cfg,
		coin:   coinType,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

type portfolioResponse struct {
	Data []struct {
		CoinType     string `json:"coinType"`
		SupplyAmount string `json:"supplyAmount"`
		SupplyValue  string `json:"supplyValue"`
	} `json:"data"`
}

// GetPosition returns the keeper identity's supplied principal and its
// current value (principal plus accrued interest) from NAVI's portfolio API.
func (m *Market) GetPosition(ctx context.Context) (domain.Position, error) {
	url := fmt.Sprintf("%s/api/navi/user/%s/portfolio", m.cfg.APIBase, m.exec.Address())

	var resp portfolioResponse
	if err := m.getJSON(ctx, url, &resp); err != nil {
		return domain.Position{}, fmt.Errorf("navi.GetPosition: %w", err)
	}

	for _, entry := range resp.Data {
		if entry.CoinType != m.coin {
			continue
		}
		principal, err := strconv.ParseUint(entry.SupplyAmount, 10, 64)
		if err != nil {
			return domain.Position{}, fmt.Errorf("navi.GetPosition: supplyAmount %q: %w", entry.SupplyAmount, err)
		}
		value, err := strconv.ParseUint(entry.SupplyValue, 10, 64)
		if err != nil {
			return domain.Position{}, fmt.Errorf("navi.GetPosition: supplyValue %q: %w", entry.SupplyValue, err)
		}
		return domain.Position{
			Principal:    domain.Amount(principal),
			CurrentValue: domain.Amount(value),
		}, nil
	}

	// No position yet is a valid zero state, not an error.
	return domain.Position{}, nil
}

// Deposit supplies the given fund handle to the lending market.
func (m *Market) Deposit(ctx context.Context, fund domain.FundHandle, amount domain.Amount) (string, error) {
	res, err := m.exec.ExecuteMoveCall(ctx, sui.MoveCall{
		Package:  m.cfg.PackageID,
		Module:   "lending_market",
		Function: "deposit_liquidity_and_mint_ctokens",
		TypeArgs: []string{m.coin},
		Args:     []any{m.cfg.MarketID, string(fund), "0x6"},
	})
	if err != nil {
		return "", fmt.Errorf("navi.Deposit: %s: %w", amount, err)
	}

	slog.Info("navi: deposited to lending market", "amount", amount, "digest", res.Digest)
	return res.Digest, nil
}

// Withdraw redeems amount of liquidity back into a coin owned by the keeper
// identity and returns it as a fund handle. Fails atomically if the market
// lacks liquidity.
func (m *Market) Withdraw(ctx context.Context, amount domain.Amount) (domain.FundHandle, error) {
	res, err := m.exec.ExecuteMoveCall(ctx, sui.MoveCall{
		Package:  m.cfg.PackageID,
		Module:   "lending_market",
		Function: "redeem_ctokens_and_withdraw_liquidity",
		TypeArgs: []string{m.coin},
		Args:     []any{m.cfg.MarketID, strconv.FormatUint(uint64(amount), 10), "0x6"},
	})
	if err != nil {
		return "", fmt.Errorf("navi.Withdraw: %s: %w", amount, err)
	}

	coinID, err := m.client.FindCoin(ctx, m.exec.Address(), m.coin, uint64(amount))
	if err != nil {
		return "", fmt.Errorf("navi.Withdraw: after tx %s: %w", res.Digest, err)
	}

	slog.Info("navi: withdrew from lending market", "amount", amount, "digest", res.Digest, "coin", coinID)
	return domain.FundHandle(coinID), nil
}

type poolsResponse struct {
	Data []struct {
		Token struct {
			Symbol string `json:"symbol"`
		} `json:"token"`
		CoinType               string `json:"coinType"`
		SupplyIncentiveAPYInfo struct {
			APY string `json:"apy"`
		} `json:"supplyIncentiveApyInfo"`
	} `json:"data"`
}

// GetSupplyRate returns the current supply APY in percent, cached for 60s.
func (m *Market) GetSupplyRate(ctx context.Context) (float64, error) {
	m.mu.Lock()
	if m.cachedRate > 0 && time.Since(m.rateFetched) < rateCacheTTL {
		rate := m.cachedRate
		m.mu.Unlock()
		return rate, nil
	}
	m.mu.Unlock()

	var resp poolsResponse
	if err := m.getJSON(ctx, m.cfg.APIBase+"/api/navi/pools", &resp); err != nil {
		return 0, fmt.Errorf("navi.GetSupplyRate: %w", err)
	}

	for _, pool := range resp.Data {
		if pool.CoinType != m.coin && pool.Token.Symbol != "USDC" {
			continue
		}
		rate, err := strconv.ParseFloat(pool.SupplyIncentiveAPYInfo.APY, 64)
		if err != nil {
			return 0, fmt.Errorf("navi.GetSupplyRate: apy %q: %w", pool.SupplyIncentiveAPYInfo.APY, err)
		}

		m.mu.Lock()
		m.cachedRate = rate
		m.rateFetched = time.Now()
		m.mu.Unlock()
		return rate, nil
	}
	return 0, fmt.Errorf("navi.GetSupplyRate: no pool for %s", m.coin)
}

func (m *Market) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
