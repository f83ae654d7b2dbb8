package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"quillnote.app/cloud/internal/logger"
	"quillnote.app/cloud/models"
	"quillnote.app/cloud/storage"
)

type UploadRequest struct {
	LicenseKey string          `json:"license_key" validate:"required"`
	DataType   string          `json:"data_type"`
	Data       json.RawMessage `json:"data" validate:"required"`
}

type UploadResponse struct {
	UploadedAt time.Time `json:"uploaded_at"`
}

type DownloadResponse struct {
	Data         json.RawMessage `json:"data"`
	LastModified *time.Time      `json:"last_modified,omitempty"`
}

func (s *Server) UploadData(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "license_key and data required")
		return
	}

	dataType := req.DataType
	if dataType == "" {
		dataType = models.DefaultDataType
	}

	uploadedAt, err := s.Storage.UpsertUserData(r.Context(), req.LicenseKey, dataType, req.Data)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidLicense) {
			writeErrorResponse(w, http.StatusForbidden, "Invalid or inactive license")
			return
		}
		logger.Error("Failed to upsert user data", map[string]interface{}{
			"error":     err.Error(),
			"data_type": dataType,
		})
		storeErrorResponse(w, err)
		return
	}

	logger.Info("User data uploaded", map[string]interface{}{
		"data_type": dataType,
		"bytes":     len(req.Data),
	})

	writeJSON(w, http.StatusOK, UploadResponse{UploadedAt: uploadedAt})
}

func (s *Server) DownloadData(w http.ResponseWriter, r *http.Request) {
	licenseKey := chi.URLParam(r, "licenseKey")
	if licenseKey == "" {
		writeErrorResponse(w, http.StatusBadRequest, "license key required")
		return
	}

	dataType := r.URL.Query().Get("dataType")
	if dataType == "" {
		dataType = models.DefaultDataType
	}

	lic, err := s.Storage.FindActiveLicenseByKey(r.Context(), licenseKey)
	if err != nil {
		logger.Error("License lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		storeErrorResponse(w, err)
		return
	}
	if lic == nil {
		writeErrorResponse(w, http.StatusForbidden, "Invalid or inactive license")
		return
	}

	data, err := s.Storage.GetUserData(r.Context(), licenseKey, dataType)
	if err != nil {
		logger.Error("Failed to load user data", map[string]interface{}{
			"error":     err.Error(),
			"data_type": dataType,
		})
		storeErrorResponse(w, err)
		return
	}

	// No data yet for this type is a normal empty state, not an error.
	if data == nil {
		writeJSON(w, http.StatusOK, DownloadResponse{Data: nil})
		return
	}

	writeJSON(w, http.StatusOK, DownloadResponse{
		Data:         data.Content,
		LastModified: &data.UpdatedAt,
	})
}
