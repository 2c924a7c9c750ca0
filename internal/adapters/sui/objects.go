package sui

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned when an object does not exist or was deleted.
// Callers map it to their own not-found semantics.
var ErrNotFound = fmt.Errorf("sui: object not found")

type getObjectResult struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Content  *struct {
			DataType string          `json:"dataType"`
			Fields   json.RawMessage `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// GetObjectFields reads one object and decodes its Move fields into out.
func (c *Client) GetObjectFields(ctx context.Context, objectID string, out any) error {
	var res getObjectResult
	err := c.Call(ctx, "sui_getObject", []any{
		objectID,
		map[string]bool{"showContent": true},
	}, &res)
	if err != nil {
		return fmt.Errorf("sui.GetObjectFields: %s: %w", objectID, err)
	}

	if res.Error != nil {
		switch res.Error.Code {
		case "notExists", "deleted":
			return fmt.Errorf("sui.GetObjectFields: %s: %w", objectID, ErrNotFound)
		default:
			return fmt.Errorf("sui.GetObjectFields: %s: object error %q", objectID, res.Error.Code)
		}
	}
	if res.Data == nil || res.Data.Content == nil {
		return fmt.Errorf("sui.GetObjectFields: %s: %w", objectID, ErrNotFound)
	}
	if res.Data.Content.DataType != "moveObject" {
		return fmt.Errorf("sui.GetObjectFields: %s: not a move object", objectID)
	}

	if err := json.Unmarshal(res.Data.Content.Fields, out); err != nil {
		return fmt.Errorf("sui.GetObjectFields: %s: decode fields: %w", objectID, err)
	}
	return nil
}

// EventPage is one page of an event query, newest first. NextCursor is the
// opaque RPC cursor for the following (older) page.
type EventPage struct {
	Events      []Event
	NextCursor  json.RawMessage
	HasNextPage bool
}

type queryEventsResult struct {
	Data        []Event         `json:"data"`
	NextCursor  json.RawMessage `json:"nextCursor"`
	HasNextPage bool            `json:"hasNextPage"`
}

// QueryEvents returns one page of events of the given Move event type,
// newest first. Pass a nil cursor for the first page and the previous page's
// NextCursor after that.
func (c *Client) QueryEvents(ctx context.Context, eventType string, cursor json.RawMessage, limit int) (*EventPage, error) {
	params := []any{
		map[string]any{"MoveEventType": eventType},
		nil, // cursor: first page
		limit,
		true, // descending
	}
	if cursor != nil {
		params[1] = cursor
	}

	var res queryEventsResult
	if err := c.Call(ctx, "suix_queryEvents", params, &res); err != nil {
		return nil, fmt.Errorf("sui.QueryEvents: %s: %w", eventType, err)
	}
	return &EventPage{
		Events:      res.Data,
		NextCursor:  res.NextCursor,
		HasNextPage: res.HasNextPage,
	}, nil
}

type coinPage struct {
	Data []struct {
		CoinObjectID string `json:"coinObjectId"`
		Balance      string `json:"balance"`
	} `json:"data"`
}

// FindCoin locates a coin owned by owner with at least min balance. Used to
// pick up the coin object produced by a preceding withdraw operation.
func (c *Client) FindCoin(ctx context.Context, owner, coinType string, min uint64) (string, error) {
	var page coinPage
	err := c.Call(ctx, "suix_getCoins", []any{owner, coinType, nil, 50}, &page)
	if err != nil {
		return "", fmt.Errorf("sui.FindCoin: %w", err)
	}

	for _, coin := range page.Data {
		balance, err := strconv.ParseUint(coin.Balance, 10, 64)
		if err != nil {
			continue
		}
		if balance >= min {
			return coin.CoinObjectID, nil
		}
	}
	return "", fmt.Errorf("sui.FindCoin: no %s coin with balance >= %d", shortType(coinType), min)
}

// U64 decodes a Move u64 field, which arrives as a JSON string.
func U64(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sui.U64: %q: %w", raw, err)
	}
	return v, nil
}

func shortType(coinType string) string {
	if i := strings.LastIndex(coinType, "::"); i >= 0 {
		return coinType[i+2:]
	}
	return coinType
}
