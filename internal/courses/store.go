package courses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/course-studio/backend/internal/models"
)

var ErrCourseNotFound = errors.New("course not found")

// CourseLookup resolves course metadata used to enrich lesson generation.
type CourseLookup interface {
	GetCourseContext(ctx context.Context, id uuid.UUID) (*models.CourseContext, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetCourseContext(ctx context.Context, id uuid.UUID) (*models.CourseContext, error) {
	var c models.CourseContext
	var description, category, level sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT title, description, category, level FROM courses WHERE id = $1`,
		id,
	).Scan(&c.Title, &description, &category, &level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course %s: %w", id, err)
	}
	c.Description = description.String
	c.Category = category.String
	c.Level = level.String
	return &c, nil
}

// CachedLookup puts a size- and TTL-bounded LRU in front of another lookup.
// Only hits are cached; misses and errors go to the backing lookup every
// time.
type CachedLookup struct {
	next  CourseLookup
	cache *expirable.LRU[uuid.UUID, models.CourseContext]
}

func NewCachedLookup(next CourseLookup, size int, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:  next,
		cache: expirable.NewLRU[uuid.UUID, models.CourseContext](size, nil, ttl),
	}
}

func (c *CachedLookup) GetCourseContext(ctx context.Context, id uuid.UUID) (*models.CourseContext, error) {
	if cc, ok := c.cache.Get(id); ok {
		return &cc, nil
	}
	cc, err := c.next.GetCourseContext(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *cc)
	return cc, nil
}
