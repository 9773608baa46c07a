package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptmeter/spendgate/internal/spendlogs"
	"github.com/promptmeter/spendgate/internal/storage"
)

func payload(requestID, teamID, endUser string, spend float64, tokens int, start time.Time) *spendlogs.Payload {
	return &spendlogs.Payload{
		RequestID:   requestID,
		TeamID:      teamID,
		EndUser:     endUser,
		Model:       "gpt-4o",
		APIKey:      "key-hash",
		Spend:       spend,
		TotalTokens: tokens,
		StartTime:   start,
		Status:      spendlogs.StatusSuccess,
	}
}

func TestMemoryStore_InsertGetList(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	if err := store.InsertSpendLog(ctx, payload("req-1", "team-a", "cust-1", 0.5, 50, start)); err != nil {
		t.Fatalf("InsertSpendLog() error = %v", err)
	}
	if err := store.InsertSpendLog(ctx, payload("req-1", "team-a", "cust-1", 0.5, 50, start)); err == nil {
		t.Error("duplicate insert succeeded, want error")
	}

	got, err := store.GetSpendLog(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetSpendLog() error = %v", err)
	}
	if got.Spend != 0.5 {
		t.Errorf("Spend = %v, want 0.5", got.Spend)
	}

	if _, err := store.GetSpendLog(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetSpendLog(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.InsertSpendLog(ctx, payload("req-2", "team-b", "cust-1", 0.1, 10, start.Add(time.Minute))); err != nil {
		t.Fatalf("InsertSpendLog() error = %v", err)
	}

	logs, err := store.ListSpendLogs(ctx, storage.ListOptions{TeamID: "team-a"})
	if err != nil {
		t.Fatalf("ListSpendLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].RequestID != "req-1" {
		t.Errorf("ListSpendLogs(team-a) = %+v, want req-1 only", logs)
	}
}

func TestMemoryStore_Aggregation(t *testing.T) {
	store := New()
	ctx := context.Background()
	day1 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	inserts := []*spendlogs.Payload{
		payload("req-1", "team-a", "cust-1", 0.10, 100, day1),
		payload("req-2", "team-a", "cust-1", 0.20, 200, day1.Add(time.Hour)),
		payload("req-3", "team-a", "cust-1", 0.40, 400, day2),
		payload("req-4", "team-a", "cust-2", 5.0, 500, day1),
	}
	for _, p := range inserts {
		if err := store.InsertSpendLog(ctx, p); err != nil {
			t.Fatalf("InsertSpendLog(%s) error = %v", p.RequestID, err)
		}
	}

	days, err := store.SpendByTeamAndCustomer(ctx, day1.Add(-time.Hour), day2.Add(time.Hour), "team-a", "cust-1")
	if err != nil {
		t.Fatalf("SpendByTeamAndCustomer() error = %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d day buckets, want 2", len(days))
	}
	if days[0].Day != "2025-06-01" || days[0].TotalTokens != 300 {
		t.Errorf("days[0] = %+v, want 2025-06-01 with 300 tokens", days[0])
	}
	if days[1].Day != "2025-06-02" || days[1].TotalTokens != 400 {
		t.Errorf("days[1] = %+v, want 2025-06-02 with 400 tokens", days[1])
	}

	pairs, err := store.TeamCustomerPairs(ctx, day1.Add(-time.Hour), day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("TeamCustomerPairs() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Errorf("pairs = %+v, want 2 entries", pairs)
	}
}
