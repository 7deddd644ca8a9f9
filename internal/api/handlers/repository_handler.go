package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/temiloluwa-oss/arkiva/internal/api/middlewares"
	"github.com/temiloluwa-oss/arkiva/internal/services"
)

type RepositoryHandler struct {
	repos *services.RepositoryService
}

func NewRepositoryHandler(repos *services.RepositoryService) *RepositoryHandler {
	return &RepositoryHandler{repos: repos}
}

type createRepositoryRequest struct {
	Name string `json:"name"`
}

func (h *RepositoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	repo, err := h.repos.Create(r.Context(), middleware.UserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (h *RepositoryHandler) List(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repos.ListByUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (h *RepositoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}
