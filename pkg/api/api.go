// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the local HTTP server.
package api

import (
	"encoding/json"
	"time"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusResponse is returned by the health probes.
type StatusResponse struct {
	Status string `json:"status"`
}

// BridgeResponse is the answer to a bridge channel request.
type BridgeResponse struct {
	Channel string `json:"channel"`
	Value   string `json:"value"`
}

// BridgeChannelsResponse lists the channels the bridge serves.
type BridgeChannelsResponse struct {
	Channels []string `json:"channels"`
}

// ProcessStats describes resource usage of the engine process.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
}

// EngineStatusResponse is the supervisor state as seen over HTTP.
type EngineStatusResponse struct {
	State               string        `json:"state"`
	Runtime             string        `json:"runtime"`
	URL                 string        `json:"url"`
	HandleID            string        `json:"handle_id,omitempty"`
	PID                 int           `json:"pid,omitempty"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	Restarts            int           `json:"restarts"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastExitCode        *int          `json:"last_exit_code,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	Stats               *ProcessStats `json:"stats,omitempty"`
}

// Engine payloads relayed by the proxy routes.

// BacktestListResponse is the engine's list of stored backtests.
type BacktestListResponse struct {
	Backtests []string `json:"backtests"`
}

// BacktestResponse is a stored backtest. The series are engine-defined.
type BacktestResponse struct {
	Predictions json.RawMessage `json:"predictions"`
	Results     json.RawMessage `json:"results"`
	EndResult   json.RawMessage `json:"end_result"`
}

// StrategyListResponse is the engine's list of uploaded strategies.
type StrategyListResponse struct {
	Strategies []string `json:"strategies"`
}

// MessageResponse is the engine's acknowledgement for mutations.
type MessageResponse struct {
	Message string `json:"message"`
}
