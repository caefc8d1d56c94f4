package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/radieske/prediction-market-node/internal/api"
	"github.com/radieske/prediction-market-node/internal/market"
)

// Client fala com a API HTTP de um market-node em nome de um nó
type Client struct {
	BaseURL string
	Node    string
	HTTP    *http.Client
}

func NewClient(base, node string) *Client {
	return &Client{
		BaseURL: base,
		Node:    node,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Market(ctx context.Context, id uint64) (market.Market, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/markets/"+strconv.FormatUint(id, 10), nil)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return market.Market{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return market.Market{}, httpError("get market", res)
	}
	var out market.Market
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return market.Market{}, err
	}
	return out, nil
}

func (c *Client) UpdateOdds(ctx context.Context, op market.UpdateOdds) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(api.OperationRequest{Type: op.Name(), Payload: payload})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/operations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderNode, c.Node)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return httpError(op.Name(), res)
	}
	return nil
}

func httpError(what string, res *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(res.Body).Decode(&body)
	return fmt.Errorf("%s http %d: %s", what, res.StatusCode, body.Error)
}
