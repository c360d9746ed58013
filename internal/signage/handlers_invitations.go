package signage

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qmagix/qiosk/internal/access"
)

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, _, ok := s.requireRole(w, r, access.RoleAdmin); !ok {
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, code, created_by, is_used, used_by, expires_at, created_at
		FROM invitation_codes
		ORDER BY created_at DESC
	`)
	if err != nil {
		log.Printf("signage-service: list invitations: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	codes := []InvitationCode{}
	for rows.Next() {
		var c InvitationCode
		if err := rows.Scan(&c.ID, &c.Code, &c.CreatedBy, &c.IsUsed, &c.UsedBy, &c.ExpiresAt, &c.CreatedAt); err != nil {
			log.Printf("signage-service: list invitations scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		log.Printf("signage-service: list invitations rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, codes)
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _, ok := s.requireRole(w, r, access.RoleAdmin)
	if !ok {
		return
	}

	var body struct {
		Code      string     `json:"code"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	code := strings.TrimSpace(body.Code)
	if code == "" {
		code = strings.ToUpper(randomToken(5))
	}
	if len(code) > 64 {
		writeError(w, http.StatusBadRequest, "code must be at most 64 characters")
		return
	}

	var c InvitationCode
	err := s.db.QueryRow(ctx, `
		INSERT INTO invitation_codes (code, created_by, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, code, created_by, is_used, used_by, expires_at, created_at
	`, code, actor.ID, body.ExpiresAt).Scan(
		&c.ID, &c.Code, &c.CreatedBy, &c.IsUsed, &c.UsedBy, &c.ExpiresAt, &c.CreatedAt,
	)
	if isDuplicateKey(err) {
		writeError(w, http.StatusConflict, "an invitation with this code already exists")
		return
	}
	if err != nil {
		log.Printf("signage-service: create invitation: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, _, ok := s.requireRole(w, r, access.RoleAdmin); !ok {
		return
	}
	invitationID := chi.URLParam(r, "id")

	var body struct {
		Code      *string    `json:"code"`
		IsUsed    *bool      `json:"isUsed"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var c InvitationCode
	err := s.db.QueryRow(ctx, `
		SELECT id, code, created_by, is_used, used_by, expires_at, created_at
		FROM invitation_codes
		WHERE id = $1
	`, invitationID).Scan(&c.ID, &c.Code, &c.CreatedBy, &c.IsUsed, &c.UsedBy, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}

	if body.Code != nil {
		code := strings.TrimSpace(*body.Code)
		if code == "" || len(code) > 64 {
			writeError(w, http.StatusBadRequest, "code must be between 1 and 64 characters")
			return
		}
		c.Code = code
	}
	if body.IsUsed != nil {
		c.IsUsed = *body.IsUsed
		if !c.IsUsed {
			c.UsedBy = nil
		}
	}
	if body.ExpiresAt != nil {
		c.ExpiresAt = body.ExpiresAt
	}

	err = s.db.QueryRow(ctx, `
		UPDATE invitation_codes
		SET code = $2, is_used = $3, used_by = $4, expires_at = $5
		WHERE id = $1
		RETURNING id, code, created_by, is_used, used_by, expires_at, created_at
	`, c.ID, c.Code, c.IsUsed, c.UsedBy, c.ExpiresAt).Scan(
		&c.ID, &c.Code, &c.CreatedBy, &c.IsUsed, &c.UsedBy, &c.ExpiresAt, &c.CreatedAt,
	)
	if isDuplicateKey(err) {
		writeError(w, http.StatusConflict, "an invitation with this code already exists")
		return
	}
	if err != nil {
		log.Printf("signage-service: update invitation: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, _, ok := s.requireRole(w, r, access.RoleAdmin); !ok {
		return
	}
	invitationID := chi.URLParam(r, "id")

	tag, err := s.db.Exec(ctx, `DELETE FROM invitation_codes WHERE id = $1`, invitationID)
	if err != nil {
		log.Printf("signage-service: delete invitation: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "invitation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
