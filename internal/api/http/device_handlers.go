package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	"github.com/sleep-hub/sleep-hub/internal/domain/device"
)

type deviceCtxKey struct{}

// requireDeviceKey authenticates the calling bed device. The device presents
// its id and API key secret in headers; the secret is checked against the
// stored bcrypt hash. Requests without a device id pass through, so manual
// and simulator traffic keeps working.
func (s *Server) requireDeviceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get("X-Device-Id")
		if deviceID == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(deviceID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid device id")
			return
		}
		d, err := s.devices.GetByID(r.Context(), id)
		if err != nil || d == nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown device")
			return
		}
		if err := d.VerifyAPIKey(r.Header.Get("X-Api-Key")); err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		_ = s.devices.TouchLastSeen(r.Context(), d.DeviceID)
		ctx := context.WithValue(r.Context(), deviceCtxKey{}, d)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type deviceRegisterRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type deviceSettingsRequest struct {
	Settings device.NotificationSettings `json:"settings"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// Device handlers
func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRegisterRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	secret, err := newAPIKeySecret()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate API key")
		return
	}
	d, err := device.NewDevice(req.UserID, req.Name, secret)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.devices.Create(r.Context(), d); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	// The plaintext secret is returned once and never stored.
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"device":  d,
		"api_key": secret,
	})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "userId required")
		return
	}
	ds, err := s.devices.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"devices": ds})
}

func (s *Server) updateDeviceSettings(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "deviceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid deviceId")
		return
	}
	var req deviceSettingsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.devices.UpdateSettings(r.Context(), id, req.Settings); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"device_id": id, "settings": req.Settings})
}

func (s *Server) updatePushToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "deviceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid deviceId")
		return
	}
	var req pushTokenRequest
	if err := decodeBody(r, &req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "token required")
		return
	}
	if err := s.devices.UpdatePushToken(r.Context(), id, req.Token); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"device_id": id, "status": "UPDATED"})
}

func newAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
