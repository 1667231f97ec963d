package companyctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// CompanyContextKey is the request context key for the authenticated company ID.
type CompanyContextKey struct{}

// OperatorContextKey is the request context key for the authenticated operator ID.
type OperatorContextKey struct{}

// WithCompanyID stores the company ID in the context.
func WithCompanyID(ctx context.Context, companyID snowflake.ID) context.Context {
	return context.WithValue(ctx, CompanyContextKey{}, companyID)
}

// WithOperatorID stores the operator ID in the context.
func WithOperatorID(ctx context.Context, operatorID snowflake.ID) context.Context {
	return context.WithValue(ctx, OperatorContextKey{}, operatorID)
}

// CompanyIDFromContext returns the company ID from context, if set.
func CompanyIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, CompanyContextKey{})
}

// OperatorIDFromContext returns the operator ID from context, if set.
func OperatorIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, OperatorContextKey{})
}

func idFromContext(ctx context.Context, key any) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch typed := ctx.Value(key).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, parsed != 0
		}
	}
	return 0, false
}
