package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	middleware "github.com/temiloluwa-oss/arkiva/internal/api/middlewares"
	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/models"
	"github.com/temiloluwa-oss/arkiva/internal/services"
)

const maxUploadBytes = 50 << 20

type ItemHandler struct {
	repos *services.RepositoryService
	items *services.ItemService
}

func NewItemHandler(repos *services.RepositoryService, items *services.ItemService) *ItemHandler {
	return &ItemHandler{repos: repos, items: items}
}

type createItemRequest struct {
	Kind   models.ItemKind `json:"kind"`
	Name   string          `json:"name"`
	Source string          `json:"source"`
}

// Create accepts either a multipart form (document upload, field "file") or a
// JSON body for url and text items.
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.createDocument(w, r, repo)
		return
	}

	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	var item *models.RepositoryItem
	switch req.Kind {
	case models.KindURL:
		item, err = h.items.CreateURL(r.Context(), repo, req.Name, req.Source)
	case models.KindText:
		item, err = h.items.CreateText(r.Context(), repo, req.Name, req.Source)
	case models.KindDocument:
		writeError(w, http.StatusBadRequest, "document items are uploaded as multipart/form-data")
		return
	default:
		writeError(w, http.StatusBadRequest, "kind must be one of document, url, text")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

func (h *ItemHandler) createDocument(w http.ResponseWriter, r *http.Request, repo *models.Repository) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	item, err := h.items.CreateDocument(r.Context(), repo, r.FormValue("name"), header.Filename, contentType, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	items, err := h.items.ListByRepository(r.Context(), repo.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	item, err := h.items.GetInRepository(r.Context(), repo.ID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Reingest(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	if err := h.items.Reingest(r.Context(), repo.ID, chi.URLParam(r, "itemID")); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeLookupError(w, err)
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetOwned(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "repositoryID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	if err := h.items.Delete(r.Context(), repo.ID, chi.URLParam(r, "itemID")); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
