// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package backup

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dreamlog/internal/authz"
	requestutil "github.com/taibuivan/dreamlog/internal/platform/request"
	"github.com/taibuivan/dreamlog/internal/platform/respond"
	"github.com/taibuivan/dreamlog/internal/platform/validate"
)

// Handler implements the backup endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /admin/backups router. Every endpoint requires canManageBackups.
//
// # Endpoints
//   - GET  /                : Stored backups, newest first.
//   - POST /                : Export and store a backup.
//   - GET  /export          : Download a snapshot.
//   - POST /import          : Import an uploaded snapshot.
//   - POST /{name}/restore  : Import a stored backup.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(handler.service.access.Enforce(authz.CanManageBackups))

	router.Get("/", handler.stored)
	router.Post("/", handler.store)
	router.Get("/export", handler.export)
	router.Post("/import", handler.importSnapshot)
	router.Post("/{name}/restore", handler.restore)

	return router
}

func (handler *Handler) export(writer http.ResponseWriter, request *http.Request) {
	snapshot, err := handler.service.Export(request.Context(), authz.PrincipalFrom(request.Context()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Attachment(writer, ObjectName(snapshot.ExportDate), snapshot)
}

/*
importSnapshot imports the snapshot in the request body.

POST /api/v1/admin/backups/import

Response:
  - 200: ImportResult
  - 400: Not a snapshot
*/
func (handler *Handler) importSnapshot(writer http.ResponseWriter, request *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, maxObjectBytes))
	if err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	snapshot, err := ParseSnapshot(body)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Import(request.Context(), authz.PrincipalFrom(request.Context()), snapshot)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}

func (handler *Handler) stored(writer http.ResponseWriter, request *http.Request) {
	objects, err := handler.service.Stored(request.Context(), authz.PrincipalFrom(request.Context()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, objects)
}

func (handler *Handler) store(writer http.ResponseWriter, request *http.Request) {
	object, err := handler.service.Store(request.Context(), authz.PrincipalFrom(request.Context()))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, object)
}

func (handler *Handler) restore(writer http.ResponseWriter, request *http.Request) {
	result, err := handler.service.Restore(request.Context(), authz.PrincipalFrom(request.Context()), requestutil.Param(request, "name"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}
