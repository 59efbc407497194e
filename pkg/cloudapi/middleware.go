package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/types"
)

type contextKey int

const deviceContextKey contextKey = iota

// deviceFromContext returns the authenticated device a middleware-wrapped
// handler is running on behalf of.
func deviceFromContext(ctx context.Context) *types.EdgeDevice {
	d, _ := ctx.Value(deviceContextKey).(*types.EdgeDevice)
	return d
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// requireDevice wraps an httprouter.Handle with bearer device-token
// authentication. A revoked or unknown token is rejected before the
// wrapped handler ever runs.
func (s *Server) requireDevice(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		device, err := s.store.GetDeviceByToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid device token")
			return
		}
		if device.Status != types.DeviceStatusActive {
			writeError(w, http.StatusForbidden, "device is not active")
			return
		}

		ctx := context.WithValue(r.Context(), deviceContextKey, device)
		next(w, r.WithContext(ctx), ps)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
