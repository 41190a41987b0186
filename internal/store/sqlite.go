package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/clawhub-core/clawhub/internal/models"
)

const defaultSkillLimit = 100

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/clawhub.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/clawhub.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		api_key_hash TEXT UNIQUE NOT NULL,
		nostr_pubkey TEXT DEFAULT '',
		colony_id TEXT DEFAULT '',
		trust_score INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES agents(id),
		name TEXT NOT NULL,
		full_name TEXT UNIQUE NOT NULL,
		version TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT DEFAULT '',
		capabilities TEXT DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_agents_api_key_hash ON agents(api_key_hash);
	CREATE INDEX IF NOT EXISTS idx_skills_author ON skills(author_id);
	CREATE INDEX IF NOT EXISTS idx_skills_created ON skills(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAgent creates a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, username, apiKeyHash, nostrPubkey, colonyID string) (*models.Agent, error) {
	defer observe("sqlite", time.Now())

	agent := &models.Agent{
		ID:          uuid.New(),
		Username:    username,
		APIKeyHash:  apiKeyHash,
		NostrPubkey: nostrPubkey,
		ColonyID:    colonyID,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, username, api_key_hash, nostr_pubkey, colony_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, agent.ID.String(), username, apiKeyHash, nostrPubkey, colonyID, agent.CreatedAt)
	if err != nil {
		return nil, sqliteError(err)
	}
	return agent, nil
}

const sqliteAgentColumns = `id, username, api_key_hash, nostr_pubkey, colony_id, trust_score, created_at`

func (s *SQLiteStore) getAgent(ctx context.Context, where string, arg any) (*models.Agent, error) {
	defer observe("sqlite", time.Now())

	agent := &models.Agent{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `SELECT `+sqliteAgentColumns+` FROM agents WHERE `+where+` = ?`, arg).Scan(
		&idStr,
		&agent.Username,
		&agent.APIKeyHash,
		&agent.NostrPubkey,
		&agent.ColonyID,
		&agent.TrustScore,
		&agent.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	agent.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// GetAgentByID retrieves an agent by ID.
func (s *SQLiteStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return s.getAgent(ctx, "id", id.String())
}

// GetAgentByUsername retrieves an agent by username.
func (s *SQLiteStore) GetAgentByUsername(ctx context.Context, username string) (*models.Agent, error) {
	return s.getAgent(ctx, "username", username)
}

// GetAgentByAPIKeyHash retrieves the agent owning an API key.
func (s *SQLiteStore) GetAgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	return s.getAgent(ctx, "api_key_hash", hash)
}

// CountAgents returns the total number of registered agents.
func (s *SQLiteStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// CreateSkill stores a skill published by skill.AuthorID.
func (s *SQLiteStore) CreateSkill(ctx context.Context, skill *models.Skill) (*models.Skill, error) {
	defer observe("sqlite", time.Now())

	created := *skill
	created.ID = uuid.New()
	created.CreatedAt = time.Now().UTC()
	if created.Capabilities == nil {
		created.Capabilities = []string{}
	}
	caps, err := json.Marshal(created.Capabilities)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skills (id, author_id, name, full_name, version, description, category, capabilities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, created.ID.String(), created.AuthorID.String(), created.Name, created.FullName,
		created.Version, created.Description, created.Category, string(caps), created.CreatedAt)
	if err != nil {
		return nil, sqliteError(err)
	}
	return &created, nil
}

// ListSkills returns skills newest first, optionally limited to one author
// username.
func (s *SQLiteStore) ListSkills(ctx context.Context, author string, limit int) ([]models.Skill, error) {
	defer observe("sqlite", time.Now())

	if limit <= 0 {
		limit = defaultSkillLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.author_id, a.username, s.name, s.full_name, s.version,
		       s.description, s.category, s.capabilities, s.created_at
		FROM skills s
		JOIN agents a ON a.id = s.author_id
		WHERE ? = '' OR a.username = ?
		ORDER BY s.created_at DESC
		LIMIT ?
	`, author, author, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skills := []models.Skill{}
	for rows.Next() {
		var (
			skill              models.Skill
			idStr, authorIDStr string
			caps               string
		)
		err := rows.Scan(
			&idStr,
			&authorIDStr,
			&skill.Author,
			&skill.Name,
			&skill.FullName,
			&skill.Version,
			&skill.Description,
			&skill.Category,
			&caps,
			&skill.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if skill.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if skill.AuthorID, err = uuid.Parse(authorIDStr); err != nil {
			return nil, err
		}
		// Malformed capability lists are treated as empty.
		if err := json.Unmarshal([]byte(caps), &skill.Capabilities); err != nil || skill.Capabilities == nil {
			skill.Capabilities = []string{}
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

// CountSkills returns the total number of published skills.
func (s *SQLiteStore) CountSkills(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skills`).Scan(&count)
	return count, err
}

func sqliteError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrConflict
	}
	return err
}
