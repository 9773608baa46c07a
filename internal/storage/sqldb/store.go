// Package sqldb is a SQL implementation of the spend log store with
// multi-dialect support (SQLite by default, PostgreSQL, MySQL).
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/promptmeter/spendgate/internal/spendlogs"
	"github.com/promptmeter/spendgate/internal/storage"
	"github.com/promptmeter/spendgate/internal/storage/dialect"
)

// Store persists spend logs in a SQL database.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ storage.SpendLogStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres, mysql
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	text := s.dialect.TextType()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS spend_logs (
request_id TEXT PRIMARY KEY,
call_type TEXT NOT NULL DEFAULT '',
api_key TEXT NOT NULL DEFAULT '',
cache_hit TEXT NOT NULL DEFAULT '',
start_time %[1]s NOT NULL,
end_time %[1]s NOT NULL,
completion_start_time %[1]s NOT NULL,
model TEXT NOT NULL DEFAULT '',
user_id TEXT NOT NULL DEFAULT '',
team_id TEXT NOT NULL DEFAULT '',
metadata %[2]s,
cache_key TEXT NOT NULL DEFAULT '',
spend REAL NOT NULL DEFAULT 0,
total_tokens INTEGER NOT NULL DEFAULT 0,
prompt_tokens INTEGER NOT NULL DEFAULT 0,
completion_tokens INTEGER NOT NULL DEFAULT 0,
request_tags %[2]s,
end_user TEXT NOT NULL DEFAULT '',
api_base TEXT NOT NULL DEFAULT '',
model_group TEXT NOT NULL DEFAULT '',
model_id TEXT NOT NULL DEFAULT '',
mcp_namespaced_tool_name TEXT NOT NULL DEFAULT '',
requester_ip_address TEXT NOT NULL DEFAULT '',
provider TEXT NOT NULL DEFAULT '',
messages %[2]s,
response %[2]s,
proxy_server_request %[2]s,
session_id TEXT NOT NULL DEFAULT '',
status TEXT NOT NULL DEFAULT 'success'
)`, ts, text),
		`CREATE INDEX IF NOT EXISTS idx_spend_logs_team ON spend_logs(team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spend_logs_end_user ON spend_logs(end_user)`,
		`CREATE INDEX IF NOT EXISTS idx_spend_logs_start_time ON spend_logs(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_spend_logs_session ON spend_logs(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spend_logs_api_key ON spend_logs(api_key)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) InsertSpendLog(ctx context.Context, payload *spendlogs.Payload) error {
	query := `INSERT INTO spend_logs (
request_id, call_type, api_key, cache_hit,
start_time, end_time, completion_start_time,
model, user_id, team_id, metadata, cache_key, spend,
total_tokens, prompt_tokens, completion_tokens,
request_tags, end_user, api_base, model_group, model_id,
mcp_namespaced_tool_name, requester_ip_address, provider,
messages, response, proxy_server_request, session_id, status
) VALUES (
:request_id, :call_type, :api_key, :cache_hit,
:start_time, :end_time, :completion_start_time,
:model, :user_id, :team_id, :metadata, :cache_key, :spend,
:total_tokens, :prompt_tokens, :completion_tokens,
:request_tags, :end_user, :api_base, :model_group, :model_id,
:mcp_namespaced_tool_name, :requester_ip_address, :provider,
:messages, :response, :proxy_server_request, :session_id, :status
)`

	if _, err := s.db.NamedExecContext(ctx, query, payload); err != nil {
		return fmt.Errorf("failed to insert spend log %s: %w", payload.RequestID, err)
	}
	return nil
}

func (s *Store) GetSpendLog(ctx context.Context, requestID string) (*spendlogs.Payload, error) {
	var payload spendlogs.Payload
	query := s.dialect.Rebind(`SELECT * FROM spend_logs WHERE request_id = ?`)
	if err := s.db.GetContext(ctx, &payload, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get spend log %s: %w", requestID, err)
	}
	return &payload, nil
}

func (s *Store) ListSpendLogs(ctx context.Context, opts storage.ListOptions) ([]*spendlogs.Payload, error) {
	query := `SELECT * FROM spend_logs WHERE 1=1`
	args := []any{}

	if opts.TeamID != "" {
		query += ` AND team_id = ?`
		args = append(args, opts.TeamID)
	}
	if opts.EndUser != "" {
		query += ` AND end_user = ?`
		args = append(args, opts.EndUser)
	}
	query += ` ORDER BY start_time DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	var payloads []*spendlogs.Payload
	if err := s.db.SelectContext(ctx, &payloads, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list spend logs: %w", err)
	}
	return payloads, nil
}

// spendRow is one row of the per-model/api-key aggregation.
type spendRow struct {
	Day         string  `db:"day"`
	TeamID      string  `db:"team_id"`
	EndUser     string  `db:"end_user"`
	Model       string  `db:"model"`
	APIKey      string  `db:"api_key"`
	Spend       float64 `db:"spend"`
	TotalTokens int64   `db:"total_tokens"`
}

func (s *Store) SpendByTeamAndCustomer(ctx context.Context, start, end time.Time, teamID, endUser string) ([]storage.DailySpend, error) {
	query := fmt.Sprintf(`SELECT
%s AS day, team_id, end_user, model, api_key,
SUM(spend) AS spend, SUM(total_tokens) AS total_tokens
FROM spend_logs
WHERE start_time BETWEEN ? AND ? AND team_id = ? AND end_user = ?
GROUP BY day, team_id, end_user, model, api_key
ORDER BY day, model, api_key`, s.dialect.DayBucket("start_time"))

	var rows []spendRow
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), start.UTC(), end.UTC(), teamID, endUser); err != nil {
		return nil, fmt.Errorf("failed to aggregate spend for team %s: %w", teamID, err)
	}

	return foldSpendRows(rows), nil
}

// foldSpendRows groups per-model/api-key rows into day buckets.
func foldSpendRows(rows []spendRow) []storage.DailySpend {
	var days []storage.DailySpend
	for _, row := range rows {
		if len(days) == 0 || days[len(days)-1].Day != row.Day {
			days = append(days, storage.DailySpend{
				Day:     row.Day,
				TeamID:  row.TeamID,
				EndUser: row.EndUser,
			})
		}
		day := &days[len(days)-1]
		day.TotalSpend += row.Spend
		day.TotalTokens += row.TotalTokens
		day.Breakdown = append(day.Breakdown, storage.ModelAPISpend{
			Model:       row.Model,
			APIKey:      row.APIKey,
			Spend:       row.Spend,
			TotalTokens: row.TotalTokens,
		})
	}
	return days
}

func (s *Store) TeamCustomerPairs(ctx context.Context, start, end time.Time) ([]storage.TeamCustomer, error) {
	query := s.dialect.Rebind(`SELECT DISTINCT team_id, end_user FROM spend_logs
WHERE start_time BETWEEN ? AND ? AND team_id != ''
ORDER BY team_id, end_user`)

	var pairs []storage.TeamCustomer
	if err := s.db.SelectContext(ctx, &pairs, query, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list team/customer pairs: %w", err)
	}
	return pairs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
