package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

// Handler exposes the repository service over HTTP.
type Handler struct {
	service objectsrepository.Service
	auth    *jwtauth.JWTAuth
}

// NewHandler creates a new repository handler
func NewHandler(service objectsrepository.Service, auth *jwtauth.JWTAuth) *Handler {
	return &Handler{service: service, auth: auth}
}

// Routes returns the routes for the repository API
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		// Tokens are verified when present; anonymous requests pass
		// through and are rejected per endpoint where an identity is
		// required.
		r.Use(jwtauth.Verifier(h.auth))

		r.Post("/submissions", h.Submit)
		r.Post("/models", h.SubmitModel)
		r.Post("/compilations", h.SubmitCompilation)
		r.Post("/annotations", h.SubmitAnnotation)

		r.Get("/entities/{collection}", h.ListEntities)
		r.Get("/entities/{collection}/search", h.Search)
		r.Get("/entities/{collection}/{id}", h.GetEntity)
		r.Delete("/entities/{collection}/{id}", h.DeleteEntity)

		r.Get("/account/data", h.OwnedData)
		r.Post("/account/attach", h.Attach)
	})

	return r
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, objectsrepository.ErrValidation),
		errors.Is(err, objectsrepository.ErrInvalidCollection):
		code = http.StatusBadRequest
	case errors.Is(err, objectsrepository.ErrNotFound),
		errors.Is(err, objectsrepository.ErrAccountNotFound):
		code = http.StatusNotFound
	case errors.Is(err, objectsrepository.ErrPermissionDenied),
		errors.Is(err, objectsrepository.ErrPasswordProtected):
		code = http.StatusForbidden
	default:
		code = http.StatusInternalServerError
	}

	message := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	if code == http.StatusForbidden {
		// Ownership failures stay opaque.
		message = "permission denied"
	}

	render.Status(r, code)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: message})
}

func decodeDocument(r *http.Request) (objectsrepository.Document, error) {
	var doc objectsrepository.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// requireSession rejects anonymous requests.
func requireSession(w http.ResponseWriter, r *http.Request) (objectsrepository.Session, bool) {
	session := sessionFromRequest(r)
	if session.Username == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "authentication required"})
		return objectsrepository.Session{}, false
	}
	return session, true
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Submit ingests a nested digital-object submission graph.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	graph, err := decodeDocument(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Submit(r.Context(), objectsrepository.SubmitRequest{
		Session: session,
		Graph:   graph,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

func (h *Handler) submitEntity(w http.ResponseWriter, r *http.Request,
	submit func(objectsrepository.SubmitEntityRequest) (objectsrepository.Document, error)) {

	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	entity, err := decodeDocument(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := submit(objectsrepository.SubmitEntityRequest{
		Session: session,
		Entity:  entity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// SubmitModel ingests a standalone model.
func (h *Handler) SubmitModel(w http.ResponseWriter, r *http.Request) {
	h.submitEntity(w, r, func(req objectsrepository.SubmitEntityRequest) (objectsrepository.Document, error) {
		return h.service.SubmitModel(r.Context(), req)
	})
}

// SubmitCompilation ingests a curated compilation.
func (h *Handler) SubmitCompilation(w http.ResponseWriter, r *http.Request) {
	h.submitEntity(w, r, func(req objectsrepository.SubmitEntityRequest) (objectsrepository.Document, error) {
		return h.service.SubmitCompilation(r.Context(), req)
	})
}

// SubmitAnnotation ingests an annotation and attaches it to its target.
func (h *Handler) SubmitAnnotation(w http.ResponseWriter, r *http.Request) {
	h.submitEntity(w, r, func(req objectsrepository.SubmitEntityRequest) (objectsrepository.Document, error) {
		return h.service.SubmitAnnotation(r.Context(), req)
	})
}

// GetEntity fetches one entity in resolved form. Protected compilations
// accept the password through the password query parameter.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	collection := objectsrepository.Collection(chi.URLParam(r, "collection"))
	id := chi.URLParam(r, "id")

	doc, err := h.service.GetEntity(r.Context(), objectsrepository.FetchRequest{
		Collection: collection,
		ID:         id,
		Session:    sessionFromRequest(r),
		Password:   r.URL.Query().Get("password"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, doc)
}

// ListEntities returns every entity of a collection.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	collection := objectsrepository.Collection(chi.URLParam(r, "collection"))

	docs, err := h.service.ListEntities(r.Context(), objectsrepository.ListRequest{
		Collection: collection,
		Session:    sessionFromRequest(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, docs)
}

// Search runs a term search over one collection, driven by the q query
// parameter.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	collection := objectsrepository.Collection(chi.URLParam(r, "collection"))

	docs, err := h.service.Search(r.Context(), objectsrepository.SearchRequest{
		Collection: collection,
		Query:      r.URL.Query().Get("q"),
		Session:    sessionFromRequest(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, docs)
}

// DeleteEntity removes an owned entity.
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteEntity(r.Context(), objectsrepository.DeleteRequest{
		Collection: objectsrepository.Collection(chi.URLParam(r, "collection")),
		ID:         chi.URLParam(r, "id"),
		Session:    session,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"status": "ok"})
}

// OwnedData resolves everything the session's account owns.
func (h *Handler) OwnedData(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	data, err := h.service.OwnedData(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, data)
}

// AttachRequestBody names the entity to link to the caller's account.
type AttachRequestBody struct {
	Collection string `json:"collection"`
	ID         string `json:"_id"`
}

// Attach links an existing entity to the session's account data.
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var body AttachRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.service.Attach(r.Context(), objectsrepository.AttachRequest{
		Collection: objectsrepository.Collection(body.Collection),
		ID:         body.ID,
		Session:    session,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"status": "ok"})
}
