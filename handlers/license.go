package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"quillnote.app/cloud/internal/license"
	"quillnote.app/cloud/internal/logger"
)

type RequestLicenseRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type RequestLicenseResponse struct {
	LicenseKey string `json:"license_key"`
	Status     string `json:"status"`
	Created    bool   `json:"created"`
}

type VerifyLicenseRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
}

type LicenseUser struct {
	Email     string    `json:"email"`
	PlanType  string    `json:"plan_type"`
	CreatedAt time.Time `json:"created_at"`
}

type VerifyLicenseResponse struct {
	Valid bool         `json:"valid"`
	User  *LicenseUser `json:"user,omitempty"`
	Error string       `json:"error,omitempty"`
}

type ActivateLicenseRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

func (s *Server) RequestLicense(w http.ResponseWriter, r *http.Request) {
	var req RequestLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid email")
		return
	}

	result, err := s.Reconciler.Request(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrInvalidEmail):
			writeErrorResponse(w, http.StatusBadRequest, "Invalid email")
		case errors.Is(err, license.ErrGenerationConflict):
			logger.Error("License generation conflict", map[string]interface{}{
				"email": req.Email,
			})
			writeErrorResponse(w, http.StatusConflict, "License generation conflict")
		default:
			logger.Error("Failed to reconcile license", map[string]interface{}{
				"error": err.Error(),
			})
			storeErrorResponse(w, err)
		}
		return
	}

	logger.Info("License request reconciled", map[string]interface{}{
		"license_key": result.LicenseKey,
		"created":     result.Created,
		"status":      result.Status,
	})

	writeJSON(w, http.StatusOK, RequestLicenseResponse{
		LicenseKey: result.LicenseKey,
		Status:     result.Status,
		Created:    result.Created,
	})
}

func (s *Server) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	var req VerifyLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "license_key required")
		return
	}

	lic, err := s.Storage.FindActiveLicenseByKey(r.Context(), req.LicenseKey)
	if err != nil {
		// A store outage must not read as "license does not exist".
		logger.Error("License lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		storeErrorResponse(w, err)
		return
	}

	if lic == nil {
		writeJSON(w, http.StatusNotFound, VerifyLicenseResponse{
			Valid: false,
			Error: "Invalid or inactive license key",
		})
		return
	}

	writeJSON(w, http.StatusOK, VerifyLicenseResponse{
		Valid: true,
		User: &LicenseUser{
			Email:     lic.Email,
			PlanType:  lic.PlanType,
			CreatedAt: lic.CreatedAt,
		},
	})
}

func (s *Server) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req ActivateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "license_key and email required")
		return
	}

	lic, err := s.Reconciler.Activate(r.Context(), req.LicenseKey, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrInvalidEmail):
			writeErrorResponse(w, http.StatusBadRequest, "Invalid email")
		case errors.Is(err, license.ErrKeyTaken):
			writeErrorResponse(w, http.StatusConflict, "License key already activated")
		default:
			logger.Error("Failed to activate license", map[string]interface{}{
				"error": err.Error(),
			})
			storeErrorResponse(w, err)
		}
		return
	}

	logger.Info("License activated", map[string]interface{}{
		"license_key": lic.Key,
	})

	writeJSON(w, http.StatusOK, RequestLicenseResponse{
		LicenseKey: lic.Key,
		Status:     lic.Status,
		Created:    false,
	})
}

type DeleteLicenseRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// DeleteLicense is the administrative reset. It is only routed when
// ADMIN_RESET=true.
func (s *Server) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	var req DeleteLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid email")
		return
	}

	if err := s.Storage.DeleteLicenseByEmail(r.Context(), license.Normalize(req.Email)); err != nil {
		logger.Error("Failed to delete license", map[string]interface{}{
			"error": err.Error(),
		})
		storeErrorResponse(w, err)
		return
	}

	logger.Warn("License deleted", map[string]interface{}{
		"email": req.Email,
	})

	w.WriteHeader(http.StatusNoContent)
}
