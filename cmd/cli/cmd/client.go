package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backdesk/pkg/api"
)

// DeskClient handles API calls to a running backdesk.
type DeskClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewDeskClient creates a new client with the given base URL and token.
func NewDeskClient(baseURL, token string) *DeskClient {
	return &DeskClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			// Creating a backtest runs it to completion
			Timeout: 5 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// EngineStatus sends GET /engine/status.
func (c *DeskClient) EngineStatus() (*api.EngineStatusResponse, error) {
	var result api.EngineStatusResponse
	if err := c.do(http.MethodGet, "/engine/status", nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ControlEngine sends POST /engine/{action} for start, stop or restart.
func (c *DeskClient) ControlEngine(action string) (*api.EngineStatusResponse, error) {
	var result api.EngineStatusResponse
	if err := c.do(http.MethodPost, "/engine/"+action, nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Bridge sends GET /bridge/{channel} and returns the channel's value.
func (c *DeskClient) Bridge(channel string) (string, error) {
	var result api.BridgeResponse
	if err := c.do(http.MethodGet, "/bridge/"+url.PathEscape(channel), nil, "", &result); err != nil {
		return "", err
	}
	return result.Value, nil
}

// ListBacktests sends GET /api/backtests.
func (c *DeskClient) ListBacktests() ([]string, error) {
	var result api.BacktestListResponse
	if err := c.do(http.MethodGet, "/api/backtests", nil, "", &result); err != nil {
		return nil, err
	}
	return result.Backtests, nil
}

// GetBacktest sends GET /api/backtests/{name}.
func (c *DeskClient) GetBacktest(name string) (*api.BacktestResponse, error) {
	var result api.BacktestResponse
	if err := c.do(http.MethodGet, "/api/backtests/"+url.PathEscape(name), nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateBacktest uploads a price file and runs a backtest on it.
func (c *DeskClient) CreateBacktest(name string, amount float64, strategy, path string) (*api.MessageResponse, error) {
	fields := map[string]string{
		"name":          name,
		"amount":        fmt.Sprintf("%g", amount),
		"strategy_name": strategy,
	}
	body, contentType, err := multipartFile(fields, path)
	if err != nil {
		return nil, err
	}

	var result api.MessageResponse
	if err := c.do(http.MethodPost, "/api/backtests", body, contentType, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteBacktest sends DELETE /api/backtests/{name}.
func (c *DeskClient) DeleteBacktest(name string) (*api.MessageResponse, error) {
	var result api.MessageResponse
	if err := c.do(http.MethodDelete, "/api/backtests/"+url.PathEscape(name), nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListStrategies sends GET /api/strategies.
func (c *DeskClient) ListStrategies() ([]string, error) {
	var result api.StrategyListResponse
	if err := c.do(http.MethodGet, "/api/strategies", nil, "", &result); err != nil {
		return nil, err
	}
	return result.Strategies, nil
}

// UploadStrategy uploads a strategy source file.
func (c *DeskClient) UploadStrategy(path string) (*api.MessageResponse, error) {
	body, contentType, err := multipartFile(nil, path)
	if err != nil {
		return nil, err
	}

	var result api.MessageResponse
	if err := c.do(http.MethodPost, "/api/strategies", body, contentType, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteStrategy sends DELETE /api/strategies/{name}.
func (c *DeskClient) DeleteStrategy(name string) (*api.MessageResponse, error) {
	var result api.MessageResponse
	if err := c.do(http.MethodDelete, "/api/strategies/"+url.PathEscape(name), nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *DeskClient) do(method, path string, body io.Reader, contentType string, out any) error {
	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	if contentType != "" {
		httpReq.Header.Add("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage prefers the JSON error field over the raw body.
func errorMessage(body []byte) string {
	var apiErr api.ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		if apiErr.Details != "" {
			return apiErr.Error + ": " + apiErr.Details
		}
		return apiErr.Error
	}
	return strings.TrimSpace(string(body))
}

func multipartFile(fields map[string]string, path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
