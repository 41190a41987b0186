package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clawhub-core/clawhub/internal/metrics"
	"github.com/clawhub-core/clawhub/internal/models"
)

// ErrConflict is returned when a unique username or skill name is taken.
var ErrConflict = errors.New("already exists")

// DataStore defines the interface for persistent storage of agents and skills.
// Both PostgresStore and SQLiteStore implement this interface. Lookups
// return a nil record and a nil error when nothing matches.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations
	CreateAgent(ctx context.Context, username, apiKeyHash, nostrPubkey, colonyID string) (*models.Agent, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentByUsername(ctx context.Context, username string) (*models.Agent, error)
	GetAgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error)
	CountAgents(ctx context.Context) (int64, error)

	// Skill operations
	CreateSkill(ctx context.Context, skill *models.Skill) (*models.Skill, error)
	ListSkills(ctx context.Context, author string, limit int) ([]models.Skill, error)
	CountSkills(ctx context.Context) (int64, error)
}

// observe records the latency of one database call.
func observe(driver string, start time.Time) {
	metrics.DatabaseLatency.WithLabelValues(driver).Observe(time.Since(start).Seconds())
}
