package sui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slyncl12/luckyvault/config"
	"github.com/slyncl12/luckyvault/internal/domain"
	"github.com/slyncl12/luckyvault/internal/ports"
)

const (
	clockObjectID  = "0x6"
	randomObjectID = "0x8"
)

// Ledger implements ports.PoolLedger against the lottery contract.
type Ledger struct {
	client *Client
	exec   *Executor
	cfg    config.LedgerConfig
}

// NewLedger wires the ledger adapter.
func NewLedger(client *Client, exec *Executor, cfg config.LedgerConfig) *Ledger {
	return &Ledger{client: client, exec: exec, cfg: cfg}
}

// call builds a fully-qualified move call into the lottery module.
func (l *Ledger) call(function string, args ...any) MoveCall {
	return MoveCall{
		Package:  l.cfg.PackageID,
		Module:   l.cfg.Module,
		Function: function,
		TypeArgs: []string{l.cfg.CoinType},
		Args:     args,
	}
}

type poolFields struct {
	Balance       string   `json:"balance"`
	TotalDeposits string   `json:"total_deposits"`
	Paused        bool     `json:"paused"`
	Whitelist     []string `json:"whitelist"`
}

func (l *Ledger) GetPool(ctx context.Context) (domain.Pool, error) {
	var fields poolFields
	if err := l.client.GetObjectFields(ctx, l.cfg.PoolID, &fields); err != nil {
		return domain.Pool{}, fmt.Errorf("sui.GetPool: %w", err)
	}

	balance, err := U64(fields.Balance)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("sui.GetPool: balance: %w", err)
	}
	deposits, err := U64(fields.TotalDeposits)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("sui.GetPool: total_deposits: %w", err)
	}

	return domain.Pool{
		ID:            l.cfg.PoolID,
		Balance:       domain.Amount(balance),
		TotalDeposits: domain.Amount(deposits),
		Paused:        fields.Paused,
		Participants:  len(fields.Whitelist),
	}, nil
}

type trackerFields struct {
	DepositedToLending string `json:"deposited_to_lending"`
	YieldWithdrawn     string `json:"yield_withdrawn"`
}

func (l *Ledger) GetYieldTracker(ctx context.Context) (domain.YieldTracker, error) {
	var fields trackerFields
	if err := l.client.GetObjectFields(ctx, l.cfg.TrackerID, &fields); err != nil {
		return domain.YieldTracker{}, fmt.Errorf("sui.GetYieldTracker: %w", err)
	}

	principal, err := U64(fields.DepositedToLending)
	if err != nil {
		return domain.YieldTracker{}, fmt.Errorf("sui.GetYieldTracker: deposited_to_lending: %w", err)
	}
	yield, err := U64(fields.YieldWithdrawn)
	if err != nil {
		return domain.YieldTracker{}, fmt.Errorf("sui.GetYieldTracker: yield_withdrawn: %w", err)
	}

	return domain.YieldTracker{
		ID:             l.cfg.TrackerID,
		Principal:      domain.Amount(principal),
		YieldWithdrawn: domain.Amount(yield),
	}, nil
}

type requestFields struct {
	User      string `json:"user"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp"`
	Fulfilled bool   `json:"fulfilled"`
}

func (l *Ledger) GetWithdrawalRequest(ctx context.Context, requestID string) (domain.WithdrawalRequest, error) {
	var fields requestFields
	if err := l.client.GetObjectFields(ctx, requestID, &fields); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.WithdrawalRequest{}, ports.ErrObjectNotFound
		}
		return domain.WithdrawalRequest{}, fmt.Errorf("sui.GetWithdrawalRequest: %w", err)
	}

	amount, err := U64(fields.Amount)
	if err != nil {
		return domain.WithdrawalRequest{}, fmt.Errorf("sui.GetWithdrawalRequest: amount: %w", err)
	}
	ts, _ := strconv.ParseInt(fields.Timestamp, 10, 64)

	return domain.WithdrawalRequest{
		ID:          requestID,
		User:        fields.User,
		Amount:      domain.Amount(amount),
		RequestedAt: time.UnixMilli(ts).UTC(),
		Fulfilled:   fields.Fulfilled,
	}, nil
}

type withdrawalRequestedEvent struct {
	RequestID string `json:"request_id"`
	User      string `json:"user"`
	Amount    string `json:"amount"`
}

const (
	eventPageSize = 50
	// maxEventPages bounds one scan. The lookback window should never hold
	// this many requests; hitting the cap means something is wrong upstream.
	maxEventPages = 20
)

// QueryWithdrawalRequests pages through withdrawal-requested events, newest
// first, until a page crosses since. Returning a silently truncated batch
// would let the caller advance its cursor past unseen requests, so running
// out of pages inside the window is an error, not a partial result.
func (l *Ledger) QueryWithdrawalRequests(ctx context.Context, since time.Time) ([]domain.WithdrawalEvent, error) {
	eventType := fmt.Sprintf("%s::%s::WithdrawalRequestedEvent", l.cfg.PackageID, l.cfg.Module)

	out := make([]domain.WithdrawalEvent, 0, eventPageSize)
	var cursor json.RawMessage
	for page := 0; page < maxEventPages; page++ {
		res, err := l.client.QueryEvents(ctx, eventType, cursor, eventPageSize)
		if err != nil {
			return nil, fmt.Errorf("sui.QueryWithdrawalRequests: %w", err)
		}

		crossed := false
		for _, ev := range res.Events {
			at := ev.Time()
			if at.Before(since) {
				// Descending order: everything after this event is older still.
				crossed = true
				break
			}

			var parsed withdrawalRequestedEvent
			if err := json.Unmarshal(ev.ParsedJSON, &parsed); err != nil {
				slog.Warn("sui: skipping malformed withdrawal event", "digest", ev.TxDigest, "err", err)
				continue
			}
			amount, err := U64(parsed.Amount)
			if err != nil {
				slog.Warn("sui: skipping withdrawal event with bad amount", "digest", ev.TxDigest, "err", err)
				continue
			}

			out = append(out, domain.WithdrawalEvent{
				RequestID: parsed.RequestID,
				User:      parsed.User,
				Amount:    domain.Amount(amount),
				Timestamp: at,
				TxDigest:  ev.TxDigest,
			})
		}

		if crossed || !res.HasNextPage {
			return out, nil
		}
		cursor = res.NextCursor
	}

	return nil, fmt.Errorf("sui.QueryWithdrawalRequests: scan not exhausted after %d pages", maxEventPages)
}

func (l *Ledger) WithdrawForRebalance(ctx context.Context, amount domain.Amount) (domain.FundHandle, error) {
	op := opID()
	slog.Info("sui: withdrawing pool liquidity for rebalance", "op", op, "amount", amount)

	res, err := l.exec.ExecuteMoveCall(ctx, l.call("admin_withdraw_for_lending",
		l.cfg.AdminCapID, l.cfg.PoolID, u64arg(amount), clockObjectID))
	if err != nil {
		return "", fmt.Errorf("sui.WithdrawForRebalance: %w", err)
	}

	// The contract transfers the split coin to the keeper identity; pick it up.
	coinID, err := l.client.FindCoin(ctx, l.exec.Address(), l.cfg.CoinType, uint64(amount))
	if err != nil {
		return "", fmt.Errorf("sui.WithdrawForRebalance: after tx %s: %w", res.Digest, err)
	}

	slog.Info("sui: pool liquidity withdrawn", "op", op, "digest", res.Digest, "coin", coinID)
	return domain.FundHandle(coinID), nil
}

func (l *Ledger) DepositFromRebalance(ctx context.Context, fund domain.FundHandle) error {
	op := opID()
	res, err := l.exec.ExecuteMoveCall(ctx, l.call("admin_deposit_from_lending",
		l.cfg.AdminCapID, l.cfg.PoolID, string(fund), clockObjectID))
	if err != nil {
		return fmt.Errorf("sui.DepositFromRebalance: %w", err)
	}
	slog.Info("sui: liquidity returned to pool", "op", op, "digest", res.Digest)
	return nil
}

func (l *Ledger) FulfillWithdrawal(ctx context.Context, requestID string, amount domain.Amount, fund domain.FundHandle) error {
	op := opID()

	// One atomic bundle: record the principal out against the tracker, then
	// settle the request with the funds. Partial settlement is impossible.
	res, err := l.exec.ExecuteBatch(ctx, []MoveCall{
		l.call("admin_record_lending_withdrawal",
			l.cfg.AdminCapID, l.cfg.TrackerID, u64arg(amount), u64arg(domain.Amount(0)), clockObjectID),
		l.call("admin_fulfill_withdrawal",
			l.cfg.AdminCapID, l.cfg.PoolID, requestID, string(fund), clockObjectID),
	}, nil)
	if err != nil {
		return fmt.Errorf("sui.FulfillWithdrawal: request %s: %w", requestID, err)
	}

	slog.Info("sui: withdrawal fulfilled", "op", op, "request_id", requestID, "amount", amount, "digest", res.Digest)
	return nil
}

func (l *Ledger) RecordLendingDeposit(ctx context.Context, amount domain.Amount) error {
	res, err := l.exec.ExecuteMoveCall(ctx, l.call("admin_record_lending_deposit",
		l.cfg.AdminCapID, l.cfg.TrackerID, u64arg(amount), clockObjectID))
	if err != nil {
		return fmt.Errorf("sui.RecordLendingDeposit: %w", err)
	}
	slog.Debug("sui: lending deposit recorded", "amount", amount, "digest", res.Digest)
	return nil
}

func (l *Ledger) RecordLendingWithdrawal(ctx context.Context, principal, yieldEarned domain.Amount) error {
	res, err := l.exec.ExecuteMoveCall(ctx, l.call("admin_record_lending_withdrawal",
		l.cfg.AdminCapID, l.cfg.TrackerID, u64arg(principal), u64arg(yieldEarned), clockObjectID))
	if err != nil {
		return fmt.Errorf("sui.RecordLendingWithdrawal: %w", err)
	}
	slog.Debug("sui: lending withdrawal recorded",
		"principal", principal, "yield", yieldEarned, "digest", res.Digest)
	return nil
}

type drawExecutedEvent struct {
	Winner string `json:"winner"`
}

func (l *Ledger) ExecuteDraw(ctx context.Context, cadence domain.Cadence) (domain.DrawResult, error) {
	op := opID()
	function := fmt.Sprintf("execute_%s_draw", cadence)

	res, err := l.exec.ExecuteMoveCall(ctx, l.call(function,
		l.cfg.AdminCapID, l.cfg.PoolID, l.cfg.DrawConfigID, l.cfg.TrackerID,
		randomObjectID, clockObjectID))
	if err != nil {
		return domain.DrawResult{}, fmt.Errorf("sui.ExecuteDraw: %s: %w", cadence, err)
	}

	result := domain.DrawResult{
		Cadence:    cadence,
		TxDigest:   res.Digest,
		ExecutedAt: time.Now().UTC(),
	}
	for _, ev := range res.Events {
		if !isDrawEvent(ev.Type) {
			continue
		}
		var parsed drawExecutedEvent
		if err := json.Unmarshal(ev.ParsedJSON, &parsed); err != nil {
			continue
		}
		result.Winner = parsed.Winner
	}

	slog.Info("sui: draw executed", "op", op, "cadence", cadence,
		"digest", res.Digest, "winner", result.Winner)
	return result, nil
}

func (l *Ledger) PayPrize(ctx context.Context, winner string, amount domain.Amount, fund domain.FundHandle) error {
	op := opID()

	res, err := l.exec.ExecuteBatch(ctx,
		[]MoveCall{l.call("admin_record_lending_withdrawal",
			l.cfg.AdminCapID, l.cfg.TrackerID, u64arg(domain.Amount(0)), u64arg(amount), clockObjectID)},
		[]Transfer{{ObjectID: string(fund), Recipient: winner}},
	)
	if err != nil {
		return fmt.Errorf("sui.PayPrize: winner %s: %w", winner, err)
	}

	slog.Info("sui: prize paid", "op", op, "winner", winner, "amount", amount, "digest", res.Digest)
	return nil
}

// isDrawEvent matches both event names the contract has emitted across
// versions.
func isDrawEvent(eventType string) bool {
	return strings.Contains(eventType, "DrawExecuted") || strings.Contains(eventType, "DrawEvent")
}

// opID is a short client-side operation ID for log correlation.
func opID() string {
	return uuid.New().String()[:8]
}

// u64arg serializes an amount the way the RPC expects u64 values.
func u64arg[T ~uint64](v T) string {
	return strconv.FormatUint(uint64(v), 10)
}
