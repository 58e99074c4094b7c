package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

type stubFreshnessService struct {
	images []service.ImageInfo
	err    error
}

func (s *stubFreshnessService) Analyze(ctx context.Context, analystID uuid.UUID, img service.ImageInfo) (*domain.FreshnessAnalysis, error) {
	s.images = append(s.images, img)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.FreshnessAnalysis{ID: uuid.New(), ImageName: img.Name, AnalystID: analystID, FreshnessScore: 88}, nil
}

func (s *stubFreshnessService) AnalyzeProduct(ctx context.Context, merchantID, productID uuid.UUID, img service.ImageInfo) (*domain.FreshnessAnalysis, *domain.Product, error) {
	s.images = append(s.images, img)
	if s.err != nil {
		return nil, nil, s.err
	}
	return &domain.FreshnessAnalysis{ID: uuid.New(), ProductID: &productID}, &domain.Product{ID: productID, FreshnessScore: 88}, nil
}

func (s *stubFreshnessService) Get(ctx context.Context, id uuid.UUID) (*domain.FreshnessAnalysis, error) {
	return nil, service.ErrAnalysisNotFound
}

func (s *stubFreshnessService) ProductHistory(ctx context.Context, productID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	return []*domain.FreshnessAnalysis{}, 0, nil
}

func (s *stubFreshnessService) ByAnalyst(ctx context.Context, analystID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	return []*domain.FreshnessAnalysis{}, 0, nil
}

func imageUpload(t *testing.T, path, field, filename string, content []byte, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestFreshnessHandler_ImageChecks(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		content []byte
		status  int
		format  string
	}{
		{name: "png", field: "image", content: pngHeader, status: http.StatusOK, format: "image/png"},
		{name: "jpeg", field: "image", content: jpegHeader, status: http.StatusOK, format: "image/jpeg"},
		{name: "text disguised as png", field: "image", content: []byte("definitely not an image"), status: http.StatusBadRequest},
		{name: "no image part", field: "", status: http.StatusBadRequest},
		{name: "wrong field name", field: "photo", content: pngHeader, status: http.StatusBadRequest},
		{name: "too large", field: "image", content: append(append([]byte{}, pngHeader...), make([]byte, MaxImageSize)...), status: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freshness := &stubFreshnessService{}
			router := newTestRouter(NewFreshnessHandler(freshness, zap.NewNop()))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, imageUpload(t, "/api/freshness/analyze", tt.field, "apple.png", tt.content, signedToken(t, uuid.New(), domain.RoleCustomer)))

			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				assert.Empty(t, freshness.images)
				return
			}
			require.Len(t, freshness.images, 1)
			assert.Equal(t, tt.format, freshness.images[0].Format)
			assert.Equal(t, "apple.png", freshness.images[0].Name)
			assert.Equal(t, int64(len(tt.content)), freshness.images[0].Size)
		})
	}
}

func TestFreshnessHandler_AnalyzeProduct(t *testing.T) {
	productID := uuid.New()
	path := "/api/freshness/products/" + productID.String() + "/analyze"

	t.Run("merchant only", func(t *testing.T) {
		freshness := &stubFreshnessService{}
		router := newTestRouter(NewFreshnessHandler(freshness, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, imageUpload(t, path, "image", "a.png", pngHeader, signedToken(t, uuid.New(), domain.RoleCustomer)))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("returns analysis and product", func(t *testing.T) {
		freshness := &stubFreshnessService{}
		router := newTestRouter(NewFreshnessHandler(freshness, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, imageUpload(t, path, "image", "a.png", pngHeader, signedToken(t, uuid.New(), domain.RoleMerchant)))
		require.Equal(t, http.StatusOK, w.Code)

		var env struct {
			Data struct {
				Analysis domain.FreshnessAnalysis `json:"analysis"`
				Product  domain.Product           `json:"product"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
		assert.Equal(t, productID, env.Data.Product.ID)
		assert.Equal(t, 88, env.Data.Product.FreshnessScore)
	})

	t.Run("product not owned", func(t *testing.T) {
		freshness := &stubFreshnessService{err: service.ErrProductNotFound}
		router := newTestRouter(NewFreshnessHandler(freshness, zap.NewNop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, imageUpload(t, path, "image", "a.png", pngHeader, signedToken(t, uuid.New(), domain.RoleMerchant)))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFreshnessHandler_HistoryIsPublic(t *testing.T) {
	router := newTestRouter(NewFreshnessHandler(&stubFreshnessService{}, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/freshness/products/"+uuid.NewString()+"/history", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var env middleware.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.True(t, env.Success)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 0, env.Pagination.Total)
}

func TestFreshnessHandler_UnknownAnalysis(t *testing.T) {
	router := newTestRouter(NewFreshnessHandler(&stubFreshnessService{}, zap.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/api/freshness/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, uuid.New(), domain.RoleCustomer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
