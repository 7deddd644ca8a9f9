package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/temiloluwa-oss/arkiva/internal/api/middlewares"
	"github.com/temiloluwa-oss/arkiva/internal/core/search"
	"github.com/temiloluwa-oss/arkiva/internal/services"
)

type SearchHandler struct {
	repos  *services.RepositoryService
	engine *search.Engine
}

func NewSearchHandler(repos *services.RepositoryService, engine *search.Engine) *SearchHandler {
	return &SearchHandler{repos: repos, engine: engine}
}

// Search handles GET ?q=...&mode=hybrid&weight=0.5&limit=10.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	q := r.URL.Query()
	opts := search.Options{Mode: search.Mode(q.Get("mode"))}
	if v := q.Get("weight"); v != "" {
		w64, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "weight must be a number")
			return
		}
		opts.SemanticWeight = w64
		opts.WeightSet = true
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		opts.Limit = n
	}

	resp, err := h.engine.Search(r.Context(), repo.ID, q.Get("q"), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
