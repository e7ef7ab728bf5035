package router

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
)

const clinicHeader = "X-Clinic-Id"

// requireClinicID enforces the clinic namespace header on tenant routes.
func requireClinicID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID := strings.TrimSpace(r.Header.Get(clinicHeader))
		if clinicID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "validation_error",
				"message": "missing X-Clinic-Id",
			})
			return
		}
		ctx := tenancy.WithClinicID(r.Context(), clinicID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
