package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/automation-core/internal/apperr"
	"github.com/R3E-Network/automation-core/internal/dlq"
	"github.com/R3E-Network/automation-core/internal/webhookapi"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation, apperr.KindDuplicateEvent:
		status = http.StatusBadRequest
	case apperr.KindAuth:
		status = http.StatusUnauthorized
	case apperr.KindRateLimited:
		status = http.StatusTooManyRequests
	case apperr.KindPayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case apperr.KindTimeout, apperr.KindCircuitOpen, apperr.KindTransport, apperr.KindIntegration:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func tenantFromRequest(r *http.Request) string {
	return r.URL.Query().Get("tenant_id")
}

func webhookCreateHandler(svc *webhookapi.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in webhookapi.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
			return
		}
		created, err := svc.Create(r.Context(), in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func webhookListHandler(svc *webhookapi.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hooks, err := svc.List(r.Context(), tenantFromRequest(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hooks)
	}
}

func webhookGetHandler(svc *webhookapi.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hook, err := svc.Get(r.Context(), chi.URLParam(r, "id"), tenantFromRequest(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hook)
	}
}

func webhookDeleteHandler(svc *webhookapi.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id"), tenantFromRequest(r)); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func dlqPendingHandler(svc *dlq.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 50
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		entries, err := svc.Pending(r.Context(), tenantFromRequest(r), r.URL.Query().Get("event_type"), limit, offset)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func dlqRetryHandler(svc *dlq.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Retry(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func dlqDeleteHandler(svc *dlq.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force := r.URL.Query().Get("force") == "true"
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id"), force); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
