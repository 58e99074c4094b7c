package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrAnalysisNotFound = errors.New("freshness analysis not found")
)

// FreshnessRepository stores freshness analysis results.
type FreshnessRepository interface {
	Create(ctx context.Context, analysis *domain.FreshnessAnalysis) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.FreshnessAnalysis, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error)
	ListByAnalyst(ctx context.Context, analystID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error)
}

type freshnessRepository struct {
	db *sql.DB
}

func NewFreshnessRepository(db *sql.DB) FreshnessRepository {
	return &freshnessRepository{db: db}
}

const analysisColumns = `id, product_id, image_name, freshness_score, confidence, status, defects,
	shelf_life_days, shelf_life_hours, recommendations, analyzed_by, analyst_id,
	model_version, processing_time_ms, image_size, image_format, created_at`

func scanAnalysis(row rowScanner) (*domain.FreshnessAnalysis, error) {
	a := &domain.FreshnessAnalysis{}
	err := row.Scan(
		&a.ID,
		&a.ProductID,
		&a.ImageName,
		&a.FreshnessScore,
		&a.Confidence,
		&a.Status,
		jsonColumn{dest: &a.Defects},
		&a.EstimatedShelfLife.Days,
		&a.EstimatedShelfLife.Hours,
		jsonColumn{dest: &a.Recommendations},
		&a.AnalyzedBy,
		&a.AnalystID,
		&a.Metadata.ModelVersion,
		&a.Metadata.ProcessingTimeMs,
		&a.Metadata.ImageSize,
		&a.Metadata.ImageFormat,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Defects == nil {
		a.Defects = []domain.Defect{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return a, nil
}

func (r *freshnessRepository) Create(ctx context.Context, a *domain.FreshnessAnalysis) error {
	defects, err := toJSON(a.Defects)
	if err != nil {
		return err
	}
	recommendations, err := toJSON(a.Recommendations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO freshness_analyses (` + analysisColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		a.ID,
		a.ProductID,
		a.ImageName,
		a.FreshnessScore,
		a.Confidence,
		a.Status,
		defects,
		a.EstimatedShelfLife.Days,
		a.EstimatedShelfLife.Hours,
		recommendations,
		a.AnalyzedBy,
		a.AnalystID,
		a.Metadata.ModelVersion,
		a.Metadata.ProcessingTimeMs,
		a.Metadata.ImageSize,
		a.Metadata.ImageFormat,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create freshness analysis: %w", err)
	}
	return nil
}

func (r *freshnessRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.FreshnessAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM freshness_analyses WHERE id = $1`

	analysis, err := scanAnalysis(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to find freshness analysis: %w", err)
	}
	return analysis, nil
}

func (r *freshnessRepository) ListByProduct(ctx context.Context, productID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	return r.list(ctx, "product_id", productID, page)
}

func (r *freshnessRepository) ListByAnalyst(ctx context.Context, analystID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	return r.list(ctx, "analyst_id", analystID, page)
}

// list is newest first; column is one of the two indexed owner columns.
func (r *freshnessRepository) list(ctx context.Context, column string, id uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM freshness_analyses WHERE %s = $1`, column)
	if err := r.db.QueryRowContext(ctx, countQuery, id).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count freshness analyses: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM freshness_analyses
		WHERE %s = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, analysisColumns, column)

	rows, err := r.db.QueryContext(ctx, query, id, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list freshness analyses: %w", err)
	}
	defer rows.Close()

	analyses := []*domain.FreshnessAnalysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan freshness analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating freshness analyses: %w", err)
	}

	return analyses, total, nil
}
