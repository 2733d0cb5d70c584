package imports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"DebtPortfolioSaas/api"
	"DebtPortfolioSaas/api/auth"
	"DebtPortfolioSaas/api/constants"
)

// ImportTemplate is a named, reusable field mapping for one import type.
type ImportTemplate struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Name            string            `json:"name"`
	ImportType      string            `json:"import_type"`
	FieldMapping    map[string]string `json:"field_mapping"`
	RequiredColumns []string          `json:"required_columns"`
	OptionalColumns []string          `json:"optional_columns"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

var errTemplateNotFound = errors.New("template not found")

// ---- store methods ----

func (s *Store) CreateTemplate(ctx context.Context, t *ImportTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	mappingJSON, err := json.Marshal(t.FieldMapping)
	if err != nil {
		return err
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_templates
			(template_id, user_id, template_name, import_type, field_mapping,
			 required_columns, optional_columns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, t.ID, t.UserID, t.Name, t.ImportType, mappingJSON,
		t.RequiredColumns, t.OptionalColumns, now)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, templateID, userID string) (*ImportTemplate, error) {
	var t ImportTemplate
	var mappingJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT template_id, user_id, template_name, import_type, field_mapping,
		       COALESCE(required_columns, '{}'), COALESCE(optional_columns, '{}'),
		       created_at, updated_at
		FROM import_templates
		WHERE template_id = $1 AND user_id = $2
	`, templateID, userID).Scan(&t.ID, &t.UserID, &t.Name, &t.ImportType, &mappingJSON,
		&t.RequiredColumns, &t.OptionalColumns, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(mappingJSON, &t.FieldMapping); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context, userID, importType string) ([]ImportTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT template_id, user_id, template_name, import_type, field_mapping,
		       COALESCE(required_columns, '{}'), COALESCE(optional_columns, '{}'),
		       created_at, updated_at
		FROM import_templates
		WHERE user_id = $1 AND ($2 = '' OR import_type = $2)
		ORDER BY template_name
	`, userID, importType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ImportTemplate, 0)
	for rows.Next() {
		var t ImportTemplate
		var mappingJSON []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.ImportType, &mappingJSON,
			&t.RequiredColumns, &t.OptionalColumns, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(mappingJSON, &t.FieldMapping); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTemplate(ctx context.Context, t *ImportTemplate) error {
	mappingJSON, err := json.Marshal(t.FieldMapping)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_templates
		SET template_name = $3, field_mapping = $4, required_columns = $5,
		    optional_columns = $6, updated_at = now()
		WHERE template_id = $1 AND user_id = $2
	`, t.ID, t.UserID, t.Name, mappingJSON, t.RequiredColumns, t.OptionalColumns)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errTemplateNotFound
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, templateID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM import_templates WHERE template_id = $1 AND user_id = $2
	`, templateID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errTemplateNotFound
	}
	return nil
}

// ---- handlers ----

type templateRequest struct {
	UserID          string            `json:"user_id"`
	Name            string            `json:"name"`
	ImportType      string            `json:"import_type"`
	FieldMapping    map[string]string `json:"field_mapping"`
	RequiredColumns []string          `json:"required_columns"`
	OptionalColumns []string          `json:"optional_columns"`
}

// Handler: create a reusable mapping template for the session user
func CreateTemplateHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if auth.SessionForUser(req.UserID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		if req.Name == "" || req.ImportType == "" || len(req.FieldMapping) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONRequired)
			return
		}
		t := &ImportTemplate{
			UserID:          req.UserID,
			Name:            req.Name,
			ImportType:      req.ImportType,
			FieldMapping:    req.FieldMapping,
			RequiredColumns: req.RequiredColumns,
			OptionalColumns: req.OptionalColumns,
		}
		if err := store.CreateTemplate(r.Context(), t); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to create template: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", t)
	}
}

// Handler: list the session user's templates, optionally by import type
func ListTemplatesHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		templates, err := store.ListTemplates(r.Context(), userID, r.URL.Query().Get("import_type"))
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to list templates: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", templates)
	}
}

// Handler: update a template owned by the session user
func UpdateTemplateHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if auth.SessionForUser(req.UserID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		t := &ImportTemplate{
			ID:              mux.Vars(r)["id"],
			UserID:          req.UserID,
			Name:            req.Name,
			FieldMapping:    req.FieldMapping,
			RequiredColumns: req.RequiredColumns,
			OptionalColumns: req.OptionalColumns,
		}
		if err := store.UpdateTemplate(r.Context(), t); err != nil {
			if errors.Is(err, errTemplateNotFound) {
				api.RespondWithError(w, http.StatusNotFound, constants.ErrTemplateNotFound)
				return
			}
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to update template: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// Handler: delete a template owned by the session user
func DeleteTemplateHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		if err := store.DeleteTemplate(r.Context(), mux.Vars(r)["id"], userID); err != nil {
			if errors.Is(err, errTemplateNotFound) {
				api.RespondWithError(w, http.StatusNotFound, constants.ErrTemplateNotFound)
				return
			}
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to delete template: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
