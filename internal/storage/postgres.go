package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/engine"
)

var DB *sql.DB

func InitPostgres(dsn string) error {
	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	return DB.Ping()
}

const schema = `
CREATE TABLE IF NOT EXISTS cards (
    id        TEXT PRIMARY KEY,
    archetype TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS match_reports (
    match_id    TEXT PRIMARY KEY,
    winner      TEXT NOT NULL DEFAULT '',
    rounds      INTEGER NOT NULL,
    stats       JSONB NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// rowScanner 便于脱离数据库测试
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// LoadCatalog 读取 cards 表；archetype 列存 ATTACK / DEFENSE / BUFF / ECONOMY
func LoadCatalog(ctx context.Context, db *sql.DB) (card.MapCatalog, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, archetype FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()
	return scanCatalog(rows)
}

func scanCatalog(rows rowScanner) (card.MapCatalog, error) {
	cat := make(card.MapCatalog)
	for rows.Next() {
		var id, arch string
		if err := rows.Scan(&id, &arch); err != nil {
			return nil, err
		}
		a, err := card.ParseArchetype(arch)
		if err != nil {
			return nil, fmt.Errorf("card %q: %w", id, err)
		}
		cat[card.ID(id)] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cat, nil
}

// SaveReport 写入战报；同一对局重复写入时覆盖
func SaveReport(ctx context.Context, db *sql.DB, r engine.Report) error {
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO match_reports (match_id, winner, rounds, stats)
VALUES ($1, $2, $3, $4)
ON CONFLICT (match_id) DO UPDATE
SET winner = EXCLUDED.winner, rounds = EXCLUDED.rounds, stats = EXCLUDED.stats, finished_at = now()`,
		r.MatchID, r.Winner, r.Rounds, stats)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.MatchID, err)
	}
	return nil
}
