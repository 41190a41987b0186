package models

import (
	"time"

	"github.com/google/uuid"
)

// Skill is a published skill record. FullName is "@author/name" and is
// unique across the catalog.
type Skill struct {
	ID           uuid.UUID `json:"id"`
	AuthorID     uuid.UUID `json:"author_id"`
	Author       string    `json:"author"`
	Name         string    `json:"name"`
	FullName     string    `json:"full_name"`
	Version      string    `json:"version"`
	Description  string    `json:"description"`
	Category     string    `json:"category,omitempty"`
	Capabilities []string  `json:"capabilities"`
	CreatedAt    time.Time `json:"created_at"`
}

// SkillFullName builds the catalog-wide name of a skill.
func SkillFullName(author, name string) string {
	return "@" + author + "/" + name
}
