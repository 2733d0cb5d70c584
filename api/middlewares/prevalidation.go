package api

import (
	"DebtPortfolioSaas/api"
	"DebtPortfolioSaas/api/constants"
	"DebtPortfolioSaas/internal/validation"
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PortfolioAccessMiddleware authenticates the request's user_id against the
// in-memory session store and loads the portfolio ids the user may act on
// into the request context. The request body is restored for the handler.
func PortfolioAccessMiddleware(db *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "Failed to read request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			userID, err := validation.ExtractUserID(r)
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, constants.ErrUserIDRequired)
				return
			}

			r.Body = io.NopCloser(bytes.NewBuffer(body))

			session := validation.ValidateSession(userID)
			if session == nil {
				api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
				return
			}

			portfolioIDs, err := validation.GetUserPortfolios(ctx, db, userID)
			if err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, "Failed to resolve portfolio access: "+err.Error())
				return
			}
			if len(portfolioIDs) == 0 {
				w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   constants.ErrNoPortfolios,
					"code":    "NO_ACCESS_PORTFOLIOS",
					"help":    "Contact your administrator to grant access to a portfolio for your account.",
				})
				return
			}

			ctx = api.WithUserID(ctx, userID)
			ctx = api.WithPortfolioIDs(ctx, portfolioIDs)
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
