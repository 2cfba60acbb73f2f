package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coinbot/internal/economy"
)

// APIError is a non-2xx answer from the coinbot API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type ShopItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceMinor  int64  `json:"price_minor"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

type Balance struct {
	UserID       string `json:"user_id"`
	BalanceMinor int64  `json:"balance_minor"`
	Balance      string `json:"balance"`
}

type EarnResponse struct {
	Result              economy.EarnResult `json:"result"`
	CooldownRemainingMs int64              `json:"cooldown_remaining_ms"`
}

type InventoryLine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (c *Client) Shop(ctx context.Context) ([]ShopItem, error) {
	var out struct {
		Items []ShopItem `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/shop", nil, &out)
	return out.Items, err
}

func (c *Client) Balance(ctx context.Context, userID string) (Balance, error) {
	var out Balance
	err := c.jsonRequest(ctx, http.MethodGet, userPath(userID, "balance"), nil, &out)
	return out, err
}

func (c *Client) Earn(ctx context.Context, userID string) (EarnResponse, error) {
	var out EarnResponse
	err := c.jsonRequest(ctx, http.MethodPost, userPath(userID, "earn"), nil, &out)
	return out, err
}

func (c *Client) Purchase(ctx context.Context, userID, item string) (economy.PurchaseResult, error) {
	var out struct {
		Result economy.PurchaseResult `json:"result"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, userPath(userID, "purchases"), map[string]any{
		"item": item,
	}, &out)
	return out.Result, err
}

// Transfer sends amount as typed ("12.50"); the server parses it.
func (c *Client) Transfer(ctx context.Context, senderID, recipientID, amount string) (economy.TransferResult, error) {
	var out struct {
		Result economy.TransferResult `json:"result"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, userPath(senderID, "transfers"), map[string]any{
		"recipient": recipientID,
		"amount":    json.Number(strings.ReplaceAll(strings.TrimSpace(amount), ",", ".")),
	}, &out)
	return out.Result, err
}

func (c *Client) Inventory(ctx context.Context, userID string) ([]InventoryLine, error) {
	var out struct {
		Items []InventoryLine `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, userPath(userID, "inventory"), nil, &out)
	return out.Items, err
}

func userPath(userID, action string) string {
	return "/v1/users/" + url.PathEscape(userID) + "/" + action
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
