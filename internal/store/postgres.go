package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawhub-core/clawhub/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateAgent creates a new agent record.
func (s *PostgresStore) CreateAgent(ctx context.Context, username, apiKeyHash, nostrPubkey, colonyID string) (*models.Agent, error) {
	defer observe("postgres", time.Now())

	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, username, api_key_hash, nostr_pubkey, colony_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+pgAgentColumns,
		uuid.New(), username, apiKeyHash, nostrPubkey, colonyID,
	).Scan(agentFields(agent)...)
	if err != nil {
		return nil, pgError(err)
	}
	return agent, nil
}

const pgAgentColumns = `id, username, api_key_hash, nostr_pubkey, colony_id, trust_score, created_at`

func agentFields(a *models.Agent) []any {
	return []any{&a.ID, &a.Username, &a.APIKeyHash, &a.NostrPubkey, &a.ColonyID, &a.TrustScore, &a.CreatedAt}
}

func (s *PostgresStore) getAgent(ctx context.Context, where string, arg any) (*models.Agent, error) {
	defer observe("postgres", time.Now())

	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx, `SELECT `+pgAgentColumns+` FROM agents WHERE `+where+` = $1`, arg).
		Scan(agentFields(agent)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// GetAgentByID retrieves an agent by ID.
func (s *PostgresStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return s.getAgent(ctx, "id", id)
}

// GetAgentByUsername retrieves an agent by username.
func (s *PostgresStore) GetAgentByUsername(ctx context.Context, username string) (*models.Agent, error) {
	return s.getAgent(ctx, "username", username)
}

// GetAgentByAPIKeyHash retrieves the agent owning an API key.
func (s *PostgresStore) GetAgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	return s.getAgent(ctx, "api_key_hash", hash)
}

// CountAgents returns the total number of registered agents.
func (s *PostgresStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// CreateSkill stores a skill published by skill.AuthorID.
func (s *PostgresStore) CreateSkill(ctx context.Context, skill *models.Skill) (*models.Skill, error) {
	defer observe("postgres", time.Now())

	created := *skill
	if created.Capabilities == nil {
		created.Capabilities = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO skills (id, author_id, name, full_name, version, description, category, capabilities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, uuid.New(), created.AuthorID, created.Name, created.FullName, created.Version,
		created.Description, created.Category, created.Capabilities,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, pgError(err)
	}
	return &created, nil
}

// ListSkills returns skills newest first, optionally limited to one author
// username.
func (s *PostgresStore) ListSkills(ctx context.Context, author string, limit int) ([]models.Skill, error) {
	defer observe("postgres", time.Now())

	if limit <= 0 {
		limit = defaultSkillLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.author_id, a.username, s.name, s.full_name, s.version,
		       s.description, s.category, s.capabilities, s.created_at
		FROM skills s
		JOIN agents a ON a.id = s.author_id
		WHERE $1 = '' OR a.username = $1
		ORDER BY s.created_at DESC
		LIMIT $2
	`, author, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skills := []models.Skill{}
	for rows.Next() {
		var skill models.Skill
		err := rows.Scan(
			&skill.ID,
			&skill.AuthorID,
			&skill.Author,
			&skill.Name,
			&skill.FullName,
			&skill.Version,
			&skill.Description,
			&skill.Category,
			&skill.Capabilities,
			&skill.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

// CountSkills returns the total number of published skills.
func (s *PostgresStore) CountSkills(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM skills`).Scan(&count)
	return count, err
}

func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}
