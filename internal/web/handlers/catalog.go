package handlers

import (
	"net/http"

	"github.com/kozaktomas/hair-advisor/internal/quiz"
)

// CatalogHandler serves the quiz catalog.
type CatalogHandler struct {
	catalog *quiz.Catalog
}

func NewCatalogHandler(catalog *quiz.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Get returns the capture step and the questions in order.
func (h *CatalogHandler) Get(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"capture":     h.catalog.Capture,
		"questions":   h.catalog.Questions,
		"total_steps": h.catalog.TotalSteps(),
	})
}
