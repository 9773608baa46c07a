// Package memory is an in-memory spend log store used in tests and
// storage-less deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/promptmeter/spendgate/internal/spendlogs"
	"github.com/promptmeter/spendgate/internal/storage"
)

// Store is an in-memory implementation of SpendLogStore.
type Store struct {
	mu   sync.RWMutex
	logs map[string]*spendlogs.Payload
}

var _ storage.SpendLogStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{logs: make(map[string]*spendlogs.Payload)}
}

func (s *Store) InsertSpendLog(ctx context.Context, payload *spendlogs.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.logs[payload.RequestID]; exists {
		return fmt.Errorf("spend log %s already exists", payload.RequestID)
	}
	copied := *payload
	s.logs[payload.RequestID] = &copied
	return nil
}

func (s *Store) GetSpendLog(ctx context.Context, requestID string) (*spendlogs.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, exists := s.logs[requestID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copied := *payload
	return &copied, nil
}

func (s *Store) ListSpendLogs(ctx context.Context, opts storage.ListOptions) ([]*spendlogs.Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*spendlogs.Payload
	for _, payload := range s.logs {
		if opts.TeamID != "" && payload.TeamID != opts.TeamID {
			continue
		}
		if opts.EndUser != "" && payload.EndUser != opts.EndUser {
			continue
		}
		copied := *payload
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) SpendByTeamAndCustomer(ctx context.Context, start, end time.Time, teamID, endUser string) ([]storage.DailySpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucketKey struct {
		day, model, apiKey string
	}
	buckets := make(map[bucketKey]*storage.ModelAPISpend)

	for _, payload := range s.logs {
		if payload.TeamID != teamID || payload.EndUser != endUser {
			continue
		}
		if payload.StartTime.Before(start) || payload.StartTime.After(end) {
			continue
		}
		key := bucketKey{
			day:    payload.StartTime.UTC().Format("2006-01-02"),
			model:  payload.Model,
			apiKey: payload.APIKey,
		}
		b, ok := buckets[key]
		if !ok {
			b = &storage.ModelAPISpend{Model: key.model, APIKey: key.apiKey}
			buckets[key] = b
		}
		b.Spend += payload.Spend
		b.TotalTokens += int64(payload.TotalTokens)
	}

	byDay := make(map[string]*storage.DailySpend)
	for key, b := range buckets {
		day, ok := byDay[key.day]
		if !ok {
			day = &storage.DailySpend{Day: key.day, TeamID: teamID, EndUser: endUser}
			byDay[key.day] = day
		}
		day.TotalSpend += b.Spend
		day.TotalTokens += b.TotalTokens
		day.Breakdown = append(day.Breakdown, *b)
	}

	var days []storage.DailySpend
	for _, day := range byDay {
		sort.Slice(day.Breakdown, func(i, j int) bool {
			if day.Breakdown[i].Model != day.Breakdown[j].Model {
				return day.Breakdown[i].Model < day.Breakdown[j].Model
			}
			return day.Breakdown[i].APIKey < day.Breakdown[j].APIKey
		})
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return days, nil
}

func (s *Store) TeamCustomerPairs(ctx context.Context, start, end time.Time) ([]storage.TeamCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[storage.TeamCustomer]struct{})
	for _, payload := range s.logs {
		if payload.TeamID == "" {
			continue
		}
		if payload.StartTime.Before(start) || payload.StartTime.After(end) {
			continue
		}
		seen[storage.TeamCustomer{TeamID: payload.TeamID, EndUser: payload.EndUser}] = struct{}{}
	}

	pairs := make([]storage.TeamCustomer, 0, len(seen))
	for pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].TeamID != pairs[j].TeamID {
			return pairs[i].TeamID < pairs[j].TeamID
		}
		return pairs[i].EndUser < pairs[j].EndUser
	})
	return pairs, nil
}

func (s *Store) Close() error {
	return nil
}
