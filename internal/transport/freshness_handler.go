package transport

import (
	"errors"
	"net/http"

	"fresh-market/internal/middleware"
	"fresh-market/internal/service"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MaxImageSize caps freshness uploads at 5 MiB.
const MaxImageSize = 5 << 20

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	errImageMissing     = errors.New("no image uploaded")
	errImageTooLarge    = errors.New("image exceeds 5MB")
	errImageUnsupported = errors.New("only JPEG, PNG and WebP images are allowed")
)

type FreshnessHandler struct {
	freshness service.FreshnessService
	logger    *zap.Logger
}

func NewFreshnessHandler(freshness service.FreshnessService, logger *zap.Logger) *FreshnessHandler {
	return &FreshnessHandler{freshness: freshness, logger: logger}
}

func (h *FreshnessHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	requireMerchant := middleware.RequireMerchant(h.logger)

	r.Route("/api/freshness", func(r chi.Router) {
		r.Get("/products/{productId}/history", h.History)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/analyze", h.Analyze)
			r.With(requireMerchant).Post("/products/{productId}/analyze", h.AnalyzeProduct)
			r.With(requireMerchant).Get("/merchant", h.MerchantAnalyses)
			r.Get("/{id}", h.Get)
		})
	})
}

// readImage pulls the "image" part and sniffs its real type; the declared
// content type is not trusted.
func readImage(w http.ResponseWriter, r *http.Request) (service.ImageInfo, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageSize+(1<<20))
	if err := r.ParseMultipartForm(MaxImageSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return service.ImageInfo{}, errImageTooLarge
		}
		return service.ImageInfo{}, errImageMissing
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return service.ImageInfo{}, errImageMissing
	}
	defer file.Close()

	if header.Size > MaxImageSize {
		return service.ImageInfo{}, errImageTooLarge
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return service.ImageInfo{}, errImageUnsupported
	}
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return service.ImageInfo{}, errImageUnsupported
	}

	return service.ImageInfo{Name: header.Filename, Size: header.Size, Format: mtype.String()}, nil
}

func (h *FreshnessHandler) imageError(w http.ResponseWriter, err error) {
	h.logger.Debug("Image upload rejected", zap.Error(err))
	status := http.StatusBadRequest
	if errors.Is(err, errImageTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	msg := err.Error()
	if errors.Is(err, errImageMissing) {
		msg = "No image uploaded"
	}
	middleware.RespondWithError(w, status, msg)
}

func (h *FreshnessHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	img, err := readImage(w, r)
	if err != nil {
		h.imageError(w, err)
		return
	}

	analysis, err := h.freshness.Analyze(r.Context(), userID, img)
	if err != nil {
		serverError(w, h.logger, "Freshness analysis failed", err, zap.String("user_id", userID.String()))
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Image analyzed successfully", analysis)
}

func (h *FreshnessHandler) AnalyzeProduct(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, ok := idParam(w, r, "productId", "Product not found")
	if !ok {
		return
	}
	img, err := readImage(w, r)
	if err != nil {
		h.imageError(w, err)
		return
	}

	analysis, product, err := h.freshness.AnalyzeProduct(r.Context(), merchantID, productID, img)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		serverError(w, h.logger, "Product freshness analysis failed", err, zap.String("product_id", productID.String()))
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "Product freshness analyzed successfully", map[string]interface{}{
		"analysis": analysis,
		"product":  product,
	})
}

func (h *FreshnessHandler) History(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(w, r, "productId", "Product not found")
	if !ok {
		return
	}
	page := pageFromQuery(r)

	analyses, total, err := h.freshness.ProductHistory(r.Context(), productID, page)
	if err != nil {
		serverError(w, h.logger, "Failed to load freshness history", err, zap.String("product_id", productID.String()))
		return
	}
	respondPage(w, analyses, page, total)
}

func (h *FreshnessHandler) MerchantAnalyses(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := pageFromQuery(r)

	analyses, total, err := h.freshness.ByAnalyst(r.Context(), merchantID, page)
	if err != nil {
		serverError(w, h.logger, "Failed to list analyses", err, zap.String("user_id", merchantID.String()))
		return
	}
	respondPage(w, analyses, page, total)
}

func (h *FreshnessHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id", "Analysis not found")
	if !ok {
		return
	}
	analysis, err := h.freshness.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAnalysisNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		serverError(w, h.logger, "Failed to get analysis", err)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", analysis)
}
