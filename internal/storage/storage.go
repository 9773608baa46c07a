// Package storage defines the persistence contracts for spend logs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/promptmeter/spendgate/internal/spendlogs"
)

// ErrNotFound is returned when no spend log exists for a request id.
var ErrNotFound = errors.New("spend log not found")

// SpendLogStore persists spend log payloads and serves the reporting
// aggregations over them.
type SpendLogStore interface {
	// InsertSpendLog stores one payload. request_id is unique; inserting
	// a duplicate is an error.
	InsertSpendLog(ctx context.Context, payload *spendlogs.Payload) error

	// GetSpendLog returns the payload for a request id, or ErrNotFound.
	GetSpendLog(ctx context.Context, requestID string) (*spendlogs.Payload, error)

	// ListSpendLogs returns payloads matching the options, newest first.
	ListSpendLogs(ctx context.Context, opts ListOptions) ([]*spendlogs.Payload, error)

	// SpendByTeamAndCustomer aggregates spend and token sums for one
	// team/customer pair, bucketed by day with a per-model/api-key
	// breakdown.
	SpendByTeamAndCustomer(ctx context.Context, start, end time.Time, teamID, endUser string) ([]DailySpend, error)

	// TeamCustomerPairs lists the distinct team/end-user pairs that have
	// spend logs in the window.
	TeamCustomerPairs(ctx context.Context, start, end time.Time) ([]TeamCustomer, error)

	Close() error
}

// ListOptions filters and pages ListSpendLogs.
type ListOptions struct {
	TeamID  string
	EndUser string
	Limit   int
	Offset  int
}

// TeamCustomer identifies one team/end-user spend attribution pair.
type TeamCustomer struct {
	TeamID  string `db:"team_id"`
	EndUser string `db:"end_user"`
}

// DailySpend is one day bucket of the team/customer aggregation.
type DailySpend struct {
	Day         string          `json:"day"`
	TeamID      string          `json:"team_id"`
	EndUser     string          `json:"end_user"`
	TotalSpend  float64         `json:"total_spend"`
	TotalTokens int64           `json:"total_tokens"`
	Breakdown   []ModelAPISpend `json:"breakdown"`
}

// ModelAPISpend is the per-model, per-api-key slice of a day bucket.
type ModelAPISpend struct {
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"`
	Spend       float64 `json:"spend"`
	TotalTokens int64   `json:"total_tokens"`
}
