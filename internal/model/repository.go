package model

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/internal/metrics"
	"github.com/thep200/repo-harvester/pkg/db"
	"github.com/thep200/repo-harvester/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxNameLength = 255
	batchSize     = 100
)

// PersistenceError is fatal to a run: nothing of the failed batch was committed.
type PersistenceError struct {
	Op    string
	Count int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d records (%s): %v", e.Count, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Repository struct {
	Model
	ID              uint       `json:"id" gorm:"column:id;primaryKey"`
	OwnerName       string     `json:"owner_name" gorm:"column:owner_name;type:varchar(255);not null;uniqueIndex:idx_repositories_owner_repo,priority:1"`
	RepoName        string     `json:"repo_name" gorm:"column:repo_name;type:varchar(255);not null;uniqueIndex:idx_repositories_owner_repo,priority:2"`
	Stars           int        `json:"stars" gorm:"column:stars;not null;default:0"`
	SourceCreatedAt *time.Time `json:"created_at" gorm:"column:created_at"`
	LastUpdated     time.Time  `json:"last_updated" gorm:"column:last_updated;not null;default:CURRENT_TIMESTAMP"`
}

func NewRepository(config *cfg.Config, logger log.Logger, database *db.Database) (*Repository, error) {
	repo := &Repository{
		Model: Model{
			Config: config,
			Logger: logger,
			Db:     database,
		},
	}
	return repo, nil
}

func (r *Repository) TableName() string {
	return "repositories"
}

// EnsureSchema creates the table and its unique key when missing. Safe to repeat.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.Db.Migrate(ctx, &Repository{}); err != nil {
		return fmt.Errorf("migrate %s: %w", r.TableName(), err)
	}
	r.Logger.Debug(ctx, "Schema for %s is up to date", r.TableName())
	return nil
}

// Upsert ghi records trong một transaction. Bản ghi đã tồn tại theo (owner, name) giữ nguyên
// id và created_at, chỉ cập nhật stars và last_updated. Các bản ghi trùng trong cùng batch
// chỉ giữ lần xuất hiện cuối. Trả về số dòng đã ghi.
func (r *Repository) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows, err := toRows(records, time.Now().UTC())
	if err != nil {
		return 0, &PersistenceError{Op: "validate", Count: len(records), Err: err}
	}

	db, err := r.Db.Db()
	if err != nil {
		return 0, &PersistenceError{Op: "connect", Count: len(rows), Err: err}
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_name"}, {Name: "repo_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"stars", "last_updated"}),
		}).CreateInBatches(rows, batchSize)
		return result.Error
	})
	if err != nil {
		r.Logger.Error(ctx, "Failed to upsert %d repositories: %v", len(rows), err)
		return 0, &PersistenceError{Op: "upsert", Count: len(rows), Err: err}
	}

	metrics.RecordsPersistedTotal.Add(float64(len(rows)))
	return len(rows), nil
}

func toRows(records []Record, now time.Time) ([]Repository, error) {
	index := make(map[string]int, len(records))
	rows := make([]Repository, 0, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Key(), err)
		}
		row := Repository{
			OwnerName:       TruncateString(rec.OwnerName, maxNameLength),
			RepoName:        TruncateString(rec.EntityName, maxNameLength),
			Stars:           rec.PopularityScore,
			SourceCreatedAt: rec.CreatedAt,
			LastUpdated:     now,
		}
		key := row.OwnerName + "/" + row.RepoName
		if i, ok := index[key]; ok {
			rows[i] = row
			continue
		}
		index[key] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

// Top lists stored repositories by stars, optionally filtered by a substring of the owner
// or the name.
func (r *Repository) Top(ctx context.Context, limit, offset int, search string) ([]Repository, error) {
	db, err := r.Db.Db()
	if err != nil {
		return nil, err
	}

	var repos []Repository
	query := r.filter(db.WithContext(ctx), search).
		Order("stars DESC").Order("id ASC").
		Offset(offset).Limit(limit)
	if err := query.Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

func (r *Repository) Count(ctx context.Context, search string) (int64, error) {
	db, err := r.Db.Db()
	if err != nil {
		return 0, err
	}

	var total int64
	if err := r.filter(db.WithContext(ctx), search).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count repositories: %w", err)
	}
	return total, nil
}

func (r *Repository) filter(db *gorm.DB, search string) *gorm.DB {
	query := db.Model(&Repository{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("owner_name LIKE ? OR repo_name LIKE ?", pattern, pattern)
	}
	return query
}
