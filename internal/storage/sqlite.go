package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/model"
	_ "github.com/mattn/go-sqlite3"
)

// Storage persists crawl checkpoints. Each seed has at most one checkpoint;
// saving replaces it inside a single transaction so a reader only ever sees
// a complete before or after state.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		seed TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		status TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		seed TEXT NOT NULL,
		position INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		depth INTEGER NOT NULL,
		is_seed INTEGER NOT NULL,
		frontier INTEGER NOT NULL,
		expanded INTEGER NOT NULL,
		groups_fetched INTEGER NOT NULL,
		games_fetched INTEGER NOT NULL,
		bans_fetched INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (seed, node_id),
		FOREIGN KEY (seed) REFERENCES crawl_runs(seed) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS profiles (
		seed TEXT NOT NULL,
		node_id TEXT NOT NULL,
		label TEXT,
		visibility INTEGER NOT NULL,
		banned INTEGER NOT NULL,
		vac_bans INTEGER NOT NULL,
		game_bans INTEGER NOT NULL,
		games TEXT,
		PRIMARY KEY (seed, node_id),
		FOREIGN KEY (seed) REFERENCES crawl_runs(seed) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS memberships (
		seed TEXT NOT NULL,
		node_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		PRIMARY KEY (seed, node_id, group_id),
		FOREIGN KEY (seed) REFERENCES crawl_runs(seed) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS edges (
		seed TEXT NOT NULL,
		position INTEGER NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		FOREIGN KEY (seed) REFERENCES crawl_runs(seed) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS frontier (
		seed TEXT NOT NULL,
		position INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		depth INTEGER NOT NULL,
		FOREIGN KEY (seed) REFERENCES crawl_runs(seed) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS visited (
		seed TEXT NOT NULL,
		position INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		FOREIGN KEY (seed) REFERENCES crawl_runs(seed) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_edges_seed ON edges(seed);
	CREATE INDEX IF NOT EXISTS idx_frontier_seed ON frontier(seed);
	CREATE INDEX IF NOT EXISTS idx_visited_seed ON visited(seed);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveCheckpoint replaces the stored checkpoint for rec.Seed atomically
func (s *Storage) SaveCheckpoint(ctx context.Context, rec *model.CrawlRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint: %w", err)
	}
	defer tx.Rollback()

	seed := rec.Seed.String()

	if _, err := tx.ExecContext(ctx, "DELETE FROM crawl_runs WHERE seed = ?", seed); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (seed, run_id, max_depth, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, seed, rec.RunID, rec.MaxDepth, rec.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}

	if err := insertRows(ctx, tx, `
		INSERT INTO nodes (seed, position, node_id, depth, is_seed, frontier, expanded, groups_fetched, games_fetched, bans_fetched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(rec.Nodes), func(i int) []any {
		n := rec.Nodes[i]
		return []any{seed, i, n.ID.String(), n.Depth, n.Seed, n.Frontier, n.Expanded, n.GroupsFetched, n.GamesFetched, n.BansFetched}
	}); err != nil {
		return fmt.Errorf("failed to write nodes: %w", err)
	}

	profiles := make([]model.ProfileRecord, 0, len(rec.Profiles))
	for _, p := range rec.Profiles {
		profiles = append(profiles, p)
	}
	var marshalErr error
	if err := insertRows(ctx, tx, `
		INSERT INTO profiles (seed, node_id, label, visibility, banned, vac_bans, game_bans, games)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, len(profiles), func(i int) []any {
		p := profiles[i]
		var games any
		if p.Games != nil {
			raw, err := json.Marshal(p.Games)
			if err != nil && marshalErr == nil {
				marshalErr = err
			}
			games = string(raw)
		}
		return []any{seed, p.ID.String(), p.Label, int(p.Visibility), p.Banned, p.VACBans, p.GameBans, games}
	}); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if marshalErr != nil {
		return fmt.Errorf("failed to encode games: %w", marshalErr)
	}

	type membership struct{ node, group model.ID }
	var members []membership
	for node, groups := range rec.Groups {
		for _, g := range groups {
			members = append(members, membership{node, g})
		}
	}
	if err := insertRows(ctx, tx, `
		INSERT OR IGNORE INTO memberships (seed, node_id, group_id) VALUES (?, ?, ?)
	`, len(members), func(i int) []any {
		return []any{seed, members[i].node.String(), members[i].group.String()}
	}); err != nil {
		return fmt.Errorf("failed to write memberships: %w", err)
	}

	if err := insertRows(ctx, tx, `
		INSERT INTO edges (seed, position, source_id, target_id, kind) VALUES (?, ?, ?, ?, ?)
	`, len(rec.Edges), func(i int) []any {
		e := rec.Edges[i]
		return []any{seed, i, e.Source.String(), e.Target.String(), string(e.Kind)}
	}); err != nil {
		return fmt.Errorf("failed to write edges: %w", err)
	}

	if err := insertRows(ctx, tx, `
		INSERT INTO frontier (seed, position, node_id, depth) VALUES (?, ?, ?, ?)
	`, len(rec.Queue), func(i int) []any {
		return []any{seed, i, rec.Queue[i].ID.String(), rec.Queue[i].Depth}
	}); err != nil {
		return fmt.Errorf("failed to write frontier: %w", err)
	}

	if err := insertRows(ctx, tx, `
		INSERT INTO visited (seed, position, node_id) VALUES (?, ?, ?)
	`, len(rec.Visited), func(i int) []any {
		return []any{seed, i, rec.Visited[i].String()}
	}); err != nil {
		return fmt.Errorf("failed to write visited set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	return nil
}

// LoadCheckpoint returns the stored record for seed, or nil if there is none
func (s *Storage) LoadCheckpoint(ctx context.Context, seed model.ID) (*model.CrawlRecord, error) {
	key := seed.String()

	rec := model.NewCrawlRecord(seed, 0)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, max_depth, status FROM crawl_runs WHERE seed = ?
	`, key).Scan(&rec.RunID, &rec.MaxDepth, &rec.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	err = s.queryRows(ctx, `
		SELECT node_id, depth, is_seed, frontier, expanded, groups_fetched, games_fetched, bans_fetched
		FROM nodes WHERE seed = ? ORDER BY position
	`, key, func(rows *sql.Rows) error {
		var n model.Node
		var idStr string
		if err := rows.Scan(&idStr, &n.Depth, &n.Seed, &n.Frontier, &n.Expanded, &n.GroupsFetched, &n.GamesFetched, &n.BansFetched); err != nil {
			return err
		}
		id, err := model.ParseID(idStr)
		if err != nil {
			return err
		}
		n.ID = id
		rec.Nodes = append(rec.Nodes, n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	err = s.queryRows(ctx, `
		SELECT node_id, label, visibility, banned, vac_bans, game_bans, games
		FROM profiles WHERE seed = ?
	`, key, func(rows *sql.Rows) error {
		var p model.ProfileRecord
		var idStr string
		var label, games sql.NullString
		var visibility int
		if err := rows.Scan(&idStr, &label, &visibility, &p.Banned, &p.VACBans, &p.GameBans, &games); err != nil {
			return err
		}
		id, err := model.ParseID(idStr)
		if err != nil {
			return err
		}
		p.ID = id
		p.Label = label.String
		p.Visibility = model.Visibility(visibility)
		if games.Valid {
			if err := json.Unmarshal([]byte(games.String), &p.Games); err != nil {
				return err
			}
		}
		rec.Profiles[p.ID] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	err = s.queryRows(ctx, `
		SELECT node_id, group_id FROM memberships WHERE seed = ? ORDER BY node_id, group_id
	`, key, func(rows *sql.Rows) error {
		var nodeStr, groupStr string
		if err := rows.Scan(&nodeStr, &groupStr); err != nil {
			return err
		}
		node, err := model.ParseID(nodeStr)
		if err != nil {
			return err
		}
		group, err := model.ParseID(groupStr)
		if err != nil {
			return err
		}
		rec.Groups[node] = append(rec.Groups[node], group)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	for node, groups := range rec.Groups {
		rec.Groups[node] = model.SortIDs(groups)
	}

	err = s.queryRows(ctx, `
		SELECT source_id, target_id, kind FROM edges WHERE seed = ? ORDER BY position
	`, key, func(rows *sql.Rows) error {
		var src, dst, kind string
		if err := rows.Scan(&src, &dst, &kind); err != nil {
			return err
		}
		source, err := model.ParseID(src)
		if err != nil {
			return err
		}
		target, err := model.ParseID(dst)
		if err != nil {
			return err
		}
		rec.Edges = append(rec.Edges, model.Edge{Source: source, Target: target, Kind: model.EdgeKind(kind)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}

	err = s.queryRows(ctx, `
		SELECT node_id, depth FROM frontier WHERE seed = ? ORDER BY position
	`, key, func(rows *sql.Rows) error {
		var q model.QueueEntry
		var idStr string
		if err := rows.Scan(&idStr, &q.Depth); err != nil {
			return err
		}
		id, err := model.ParseID(idStr)
		if err != nil {
			return err
		}
		q.ID = id
		rec.Queue = append(rec.Queue, q)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load frontier: %w", err)
	}

	err = s.queryRows(ctx, `
		SELECT node_id FROM visited WHERE seed = ? ORDER BY position
	`, key, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		v, err := model.ParseID(id)
		if err != nil {
			return err
		}
		rec.Visited = append(rec.Visited, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load visited set: %w", err)
	}

	return rec, nil
}

func (s *Storage) queryRows(ctx context.Context, query, seed string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, seed)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LatestResumable returns the most recently updated checkpoint that did not complete
func (s *Storage) LatestResumable(ctx context.Context) (*RunInfo, error) {
	var info RunInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT r.seed, r.run_id, r.max_depth, r.status, r.updated_at,
			(SELECT COUNT(*) FROM nodes n WHERE n.seed = r.seed),
			(SELECT COUNT(*) FROM frontier f WHERE f.seed = r.seed)
		FROM crawl_runs r
		WHERE r.status != ?
		ORDER BY r.updated_at DESC
		LIMIT 1
	`, model.StatusCompleted).Scan(&info.Seed, &info.RunID, &info.MaxDepth, &info.Status,
		&info.UpdatedAt, &info.NodeCount, &info.QueueSize)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resumable run: %w", err)
	}
	return &info, nil
}

// DeleteCheckpoint removes the stored checkpoint for seed
func (s *Storage) DeleteCheckpoint(ctx context.Context, seed model.ID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM crawl_runs WHERE seed = ?", seed.String())
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
