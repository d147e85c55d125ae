package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pairtrade/internal/domain"
)

// ExecutionBridge implements ExecutionService against the external order
// execution engine over HTTP. Order routing, retries and broker sessions
// are the engine's concern; this side only reports intent.
type ExecutionBridge struct {
	baseURL    string
	httpClient *http.Client
}

// NewExecutionBridge creates a new execution engine bridge
func NewExecutionBridge(baseURL string) domain.ExecutionService {
	return &ExecutionBridge{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OpenOrderRequest represents the open request to the execution engine
type OpenOrderRequest struct {
	Exchange     string  `json:"exchange"`
	Pair         string  `json:"pair"`
	Leg1         string  `json:"leg1"`
	Leg2         string  `json:"leg2"`
	Action       string  `json:"action"`
	Signal       int     `json:"signal"`
	FundPerTrade float64 `json:"fund_per_trade"`
}

// CloseOrderRequest represents the close request to the execution engine
type CloseOrderRequest struct {
	Exchange string `json:"exchange"`
	Pair     string `json:"pair"`
	Leg1     string `json:"leg1"`
	Leg2     string `json:"leg2"`
}

// Open asks the execution engine to open both legs of a spread position
func (eb *ExecutionBridge) Open(ctx context.Context, pair domain.Pair, signal int, fundPerTrade float64) error {
	reqBody := OpenOrderRequest{
		Exchange:     pair.Exchange,
		Pair:         pair.Name,
		Leg1:         pair.Leg1,
		Leg2:         pair.Leg2,
		Action:       domain.Action(signal),
		Signal:       signal,
		FundPerTrade: fundPerTrade,
	}
	return eb.post(ctx, "/orders/open", reqBody)
}

// Close asks the execution engine to flatten both legs of a spread position
func (eb *ExecutionBridge) Close(ctx context.Context, pair domain.Pair) error {
	reqBody := CloseOrderRequest{
		Exchange: pair.Exchange,
		Pair:     pair.Name,
		Leg1:     pair.Leg1,
		Leg2:     pair.Leg2,
	}
	return eb.post(ctx, "/orders/close", reqBody)
}

func (eb *ExecutionBridge) post(ctx context.Context, path string, body interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := eb.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := eb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call execution engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("execution engine returned error: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	return nil
}
