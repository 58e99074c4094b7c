package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	freshnessModelVersion = "1.0.0"
	analyzedByModel       = "ai_model"
	defectScoreCutoff     = 85
)

var ErrAnalysisNotFound = errors.New("analysis not found")

var possibleDefects = []string{"bruising", "discoloration", "soft_spots", "brown_spots"}

var recommendationsByStatus = map[domain.FreshnessStatus][]string{
	domain.FreshnessVeryFresh: {
		"Excellent quality! Perfect for immediate consumption.",
		"Store in optimal conditions to maintain freshness.",
		"Expected shelf life: 5-7 days under proper storage.",
	},
	domain.FreshnessFresh: {
		"Good quality with minor imperfections.",
		"Consume within 3-5 days for best quality.",
		"Store in refrigerator to extend freshness.",
	},
	domain.FreshnessGood: {
		"Fair quality - suitable for immediate use.",
		"Consume within 2-3 days.",
		"Check regularly for any changes in condition.",
	},
	domain.FreshnessFair: {
		"Consider using soon or for cooking.",
		"Consume within 1-2 days.",
		"Suitable for processed foods rather than raw consumption.",
	},
}

// ImageInfo describes an uploaded image. The bytes themselves are not kept.
type ImageInfo struct {
	Name   string
	Size   int64
	Format string
}

// FreshnessService produces placeholder freshness analyses. Scores are
// random draws, not inference.
type FreshnessService interface {
	// Analyze runs an ad-hoc analysis not tied to a product.
	Analyze(ctx context.Context, analystID uuid.UUID, img ImageInfo) (*domain.FreshnessAnalysis, error)
	// AnalyzeProduct also writes the score and expiry onto the merchant's product.
	AnalyzeProduct(ctx context.Context, merchantID, productID uuid.UUID, img ImageInfo) (*domain.FreshnessAnalysis, *domain.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.FreshnessAnalysis, error)
	ProductHistory(ctx context.Context, productID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error)
	ByAnalyst(ctx context.Context, analystID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error)
}

type freshnessService struct {
	freshnessRepo repository.FreshnessRepository
	productRepo   repository.ProductRepository
	logger        *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFreshnessService builds the service. A nil rng uses the global source.
func NewFreshnessService(
	freshnessRepo repository.FreshnessRepository,
	productRepo repository.ProductRepository,
	rng *rand.Rand,
	logger *zap.Logger,
) FreshnessService {
	return &freshnessService{
		freshnessRepo: freshnessRepo,
		productRepo:   productRepo,
		rng:           rng,
		logger:        logger,
	}
}

// intN is safe for concurrent requests; *rand.Rand is not.
func (s *freshnessService) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// simulate draws score 60-99 and confidence 85-99 and derives the rest.
func (s *freshnessService) simulate(analystID uuid.UUID, productID *uuid.UUID, img ImageInfo, now time.Time) *domain.FreshnessAnalysis {
	score := s.intN(40) + 60

	status := domain.FreshnessStatusForScore(score)
	recommendations := append([]string(nil), recommendationsByStatus[status]...)

	defects := []domain.Defect{}
	if score < defectScoreCutoff {
		severity := "medium"
		if score > 75 {
			severity = "low"
		}
		n := s.intN(2) + 1
		for i := 0; i < n; i++ {
			defects = append(defects, domain.Defect{
				Type:     possibleDefects[s.intN(len(possibleDefects))],
				Severity: severity,
				Location: "Surface area",
			})
		}
	}

	return &domain.FreshnessAnalysis{
		ID:             uuid.New(),
		ProductID:      productID,
		ImageName:      img.Name,
		FreshnessScore: score,
		Confidence:     s.intN(15) + 85,
		Status:         status,
		Defects:        defects,
		EstimatedShelfLife: domain.ShelfLife{
			Days:  score/20 + 1,
			Hours: s.intN(24),
		},
		Recommendations: recommendations,
		AnalyzedBy:      analyzedByModel,
		AnalystID:       analystID,
		Metadata: domain.AnalysisMetadata{
			ModelVersion:     freshnessModelVersion,
			ProcessingTimeMs: s.intN(2000) + 500,
			ImageSize:        img.Size,
			ImageFormat:      img.Format,
		},
		CreatedAt: now,
	}
}

func (s *freshnessService) Analyze(ctx context.Context, analystID uuid.UUID, img ImageInfo) (*domain.FreshnessAnalysis, error) {
	analysis := s.simulate(analystID, nil, img, time.Now().UTC())
	if err := s.freshnessRepo.Create(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}
	return analysis, nil
}

func (s *freshnessService) AnalyzeProduct(ctx context.Context, merchantID, productID uuid.UUID, img ImageInfo) (*domain.FreshnessAnalysis, *domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, nil, mapProductErr(err, "failed to find product")
	}
	if product.MerchantID != merchantID {
		return nil, nil, ErrProductNotFound
	}

	now := time.Now().UTC()
	analysis := s.simulate(merchantID, &productID, img, now)
	if err := s.freshnessRepo.Create(ctx, analysis); err != nil {
		return nil, nil, fmt.Errorf("failed to store analysis: %w", err)
	}

	expiry := now.AddDate(0, 0, analysis.EstimatedShelfLife.Days)
	updated, err := s.productRepo.UpdateFreshness(ctx, productID, analysis.FreshnessScore, now, &expiry, nil)
	if err != nil {
		return nil, nil, mapProductErr(err, "failed to update product freshness")
	}

	s.logger.Info("Freshness analyzed",
		zap.String("product_id", productID.String()),
		zap.Int("score", analysis.FreshnessScore),
		zap.String("status", string(analysis.Status)),
	)
	return analysis, updated, nil
}

func (s *freshnessService) Get(ctx context.Context, id uuid.UUID) (*domain.FreshnessAnalysis, error) {
	analysis, err := s.freshnessRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAnalysisNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return analysis, nil
}

func (s *freshnessService) ProductHistory(ctx context.Context, productID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	analyses, total, err := s.freshnessRepo.ListByProduct(ctx, productID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list product analyses: %w", err)
	}
	return analyses, total, nil
}

func (s *freshnessService) ByAnalyst(ctx context.Context, analystID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	analyses, total, err := s.freshnessRepo.ListByAnalyst(ctx, analystID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, total, nil
}
