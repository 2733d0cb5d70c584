package api

import (
	"context"
)

type ctxKey string

const (
	CtxUserID       ctxKey = "user_id"
	CtxSessionToken ctxKey = "session_token"
	CtxPortfolioIDs ctxKey = "portfolio_ids"
)

// WithUserID stores the authenticated user id on the request context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// WithPortfolioIDs stores the set of portfolio ids the user may act on.
func WithPortfolioIDs(ctx context.Context, ids []string) context.Context {
	return context.WithValue(ctx, CtxPortfolioIDs, ids)
}

// GetUserIDFromCtx returns the user id set by the access middleware, if any.
func GetUserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxUserID).(string); ok {
		return v
	}
	return ""
}

// GetPortfolioIDsFromCtx returns the accessible portfolio ids set by the
// access middleware. A nil slice means the middleware did not run.
func GetPortfolioIDsFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxPortfolioIDs).([]string); ok {
		return v
	}
	return nil
}

// IsPortfolioAllowed reports whether the request's user may act on the given
// portfolio. When the middleware never populated the context the check is
// skipped and access is allowed; handlers behind the middleware always see a
// populated set.
func IsPortfolioAllowed(ctx context.Context, portfolioID string) bool {
	ids := GetPortfolioIDsFromCtx(ctx)
	if ids == nil {
		return true
	}
	for _, id := range ids {
		if id == portfolioID {
			return true
		}
	}
	return false
}
