package sui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// MoveCall is one contract call inside an operation bundle.
type MoveCall struct {
	Package  string
	Module   string
	Function string
	TypeArgs []string
	Args     []any // object IDs and u64 amounts (as decimal strings)
}

// Transfer sends an owned object (a fund handle) to a recipient as part of
// a bundle.
type Transfer struct {
	ObjectID  string
	Recipient string
}

// Event is a ledger event, either from a transaction's effects or from an
// event query.
type Event struct {
	Type        string          `json:"type"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	TimestampMs string          `json:"timestampMs"`
	TxDigest    string          `json:"transactionDigest"`
}

// Time returns the event's checkpoint timestamp (zero if absent).
func (e Event) Time() time.Time {
	ms, err := strconv.ParseInt(e.TimestampMs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// TxResult is the finalized outcome of a submitted bundle.
type TxResult struct {
	Digest string
	Events []Event
}

// Executor builds, signs, and submits operation bundles, waiting for
// finality with a bounded timeout. A timeout means failed-and-retriable to
// callers, never succeeded.
type Executor struct {
	client    *Client
	signer    *Signer
	gasBudget uint64
	timeout   time.Duration
}

// NewExecutor wires an Executor over the given client and signing identity.
func NewExecutor(client *Client, signer *Signer, gasBudget uint64, timeout time.Duration) *Executor {
	return &Executor{client: client, signer: signer, gasBudget: gasBudget, timeout: timeout}
}

// Address returns the submitting identity's address.
func (e *Executor) Address() string { return e.signer.Address() }

type txBytesResult struct {
	TxBytes string `json:"txBytes"`
}

type executeResult struct {
	Digest  string `json:"digest"`
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	Events []Event `json:"events"`
}

// ExecuteMoveCall submits a single-call bundle.
func (e *Executor) ExecuteMoveCall(ctx context.Context, call MoveCall) (*TxResult, error) {
	var built txBytesResult
	err := e.client.Call(ctx, "unsafe_moveCall", []any{
		e.signer.Address(),
		call.Package,
		call.Module,
		call.Function,
		call.TypeArgs,
		call.Args,
		nil, // gas object: let the node pick
		fmt.Sprintf("%d", e.gasBudget),
	}, &built)
	if err != nil {
		return nil, fmt.Errorf("sui.ExecuteMoveCall: build %s::%s: %w", call.Module, call.Function, err)
	}

	return e.signAndExecute(ctx, built.TxBytes)
}

// ExecuteBatch submits several calls and transfers as one atomic bundle:
// either every step lands or none do.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []MoveCall, transfers []Transfer) (*TxResult, error) {
	params := make([]map[string]any, 0, len(calls)+len(transfers))
	for _, call := range calls {
		params = append(params, map[string]any{
			"moveCallRequestParams": map[string]any{
				"packageObjectId": call.Package,
				"module":          call.Module,
				"function":        call.Function,
				"typeArguments":   call.TypeArgs,
				"arguments":       call.Args,
			},
		})
	}
	for _, tr := range transfers {
		params = append(params, map[string]any{
			"transferObjectRequestParams": map[string]any{
				"recipient": tr.Recipient,
				"objectId":  tr.ObjectID,
			},
		})
	}

	var built txBytesResult
	err := e.client.Call(ctx, "unsafe_batchTransaction", []any{
		e.signer.Address(),
		params,
		nil,
		fmt.Sprintf("%d", e.gasBudget),
	}, &built)
	if err != nil {
		return nil, fmt.Errorf("sui.ExecuteBatch: build bundle (%d steps): %w", len(params), err)
	}

	return e.signAndExecute(ctx, built.TxBytes)
}

// signAndExecute signs the built bytes and submits them, waiting for local
// execution. Submission is never retried at this layer: the bundle may have
// landed even when the response was lost.
func (e *Executor) signAndExecute(ctx context.Context, txBytesB64 string) (*TxResult, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return nil, fmt.Errorf("sui.signAndExecute: decode tx bytes: %w", err)
	}
	signature := e.signer.SignTransaction(txBytes)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var res executeResult
	err = e.client.CallOnce(ctx, "sui_executeTransactionBlock", []any{
		txBytesB64,
		[]string{signature},
		map[string]bool{"showEffects": true, "showEvents": true},
		"WaitForLocalExecution",
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("sui.signAndExecute: submit: %w", err)
	}

	if res.Effects.Status.Status != "success" {
		return nil, fmt.Errorf("sui.signAndExecute: tx %s failed: %s", res.Digest, res.Effects.Status.Error)
	}

	slog.Debug("sui: bundle finalized", "digest", res.Digest)
	return &TxResult{Digest: res.Digest, Events: res.Events}, nil
}
