// Package tenancy carries the clinic namespace through request contexts.
package tenancy

import (
	"context"
	"strings"
)

type ctxKey string

const clinicKey ctxKey = "clinic.clinic_id"

// WithClinicID stores the clinic id in context.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, clinicKey, strings.TrimSpace(clinicID))
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(clinicKey)
	if val == nil {
		return "", false
	}
	clinicID, ok := val.(string)
	return clinicID, ok && clinicID != ""
}
