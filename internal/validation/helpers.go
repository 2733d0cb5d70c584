package validation

import (
	"DebtPortfolioSaas/api/auth"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExtractUserID parses the request body ONCE and extracts user_id
// This replaces repeated body parsing in every middleware
func ExtractUserID(r *http.Request) (string, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	defer r.Body.Close()

	// Try JSON first (we already have bytes)
	var reqMap map[string]interface{}
	if err := json.Unmarshal(body, &reqMap); err == nil {
		if userID, ok := reqMap["user_id"].(string); ok && userID != "" {
			r.Body = io.NopCloser(bytes.NewBuffer(body))
			return userID, nil
		}
	}

	// Restore body so form parsing can read it
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	ct := r.Header.Get("Content-Type")
	if strings.Contains(strings.ToLower(ct), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			if userID := r.FormValue("user_id"); userID != "" {
				r.Body = io.NopCloser(bytes.NewBuffer(body))
				return userID, nil
			}
		}
	} else {
		if err := r.ParseForm(); err == nil {
			if userID := r.FormValue("user_id"); userID != "" {
				r.Body = io.NopCloser(bytes.NewBuffer(body))
				return userID, nil
			}
		}
	}

	// Ensure body is available for caller
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	return "", fmt.Errorf("user_id not found in request")
}

// ValidateSession checks if the user has an active session (in-memory check, no DB)
// Returns the session object or nil if not found
func ValidateSession(userID string) *auth.UserSession {
	sessions := auth.GetActiveSessions()
	for _, s := range sessions {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

// GetUserPortfolios retrieves the portfolio ids the user may act on. Owned
// portfolios come first, then portfolios shared through portfolio_access.
func GetUserPortfolios(ctx context.Context, db *pgxpool.Pool, userID string) ([]string, error) {
	query := `
		SELECT p.id
		FROM portfolios p
		WHERE p.owner_id = $1
		  AND COALESCE(p.is_deleted, false) = false
		UNION
		SELECT pa.portfolio_id
		FROM portfolio_access pa
		JOIN portfolios p ON p.id = pa.portfolio_id
		WHERE pa.user_id = $1
		  AND COALESCE(p.is_deleted, false) = false
	`

	rows, err := db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := []string{}
	for rows.Next() {
		var portfolioID string
		if err := rows.Scan(&portfolioID); err == nil {
			portfolios = append(portfolios, portfolioID)
		}
	}

	return portfolios, nil
}
