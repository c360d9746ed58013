package signage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/qmagix/qiosk/internal/access"
)

type registerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	InvitationCode string `json:"invitationCode"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	email := strings.TrimSpace(strings.ToLower(body.Email))
	code := strings.TrimSpace(body.InvitationCode)

	if body.Name == "" || len(body.Name) > 255 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
		return
	}
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if code == "" {
		writeError(w, http.StatusBadRequest, "invitation code is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("signage-service: register hash: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("signage-service: register begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer tx.Rollback(ctx)

	var invitationID string
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM invitation_codes
		WHERE code = $1
		  AND is_used = FALSE
		  AND (expires_at IS NULL OR expires_at > now())
		FOR UPDATE
	`, code).Scan(&invitationID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusUnprocessableEntity, "invalid or expired invitation code")
		return
	}
	if err != nil {
		log.Printf("signage-service: register invitation lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var user User
	err = tx.QueryRow(ctx, `
		INSERT INTO users (name, email, password, role)
		VALUES ($1, $2, $3, 'regular')
		RETURNING id, name, email, password, role, created_at
	`, body.Name, email, string(hash)).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("signage-service: register insert user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if _, err := tx.Exec(ctx, `
		UPDATE invitation_codes
		SET is_used = TRUE, used_by = $2
		WHERE id = $1
	`, invitationID, user.ID); err != nil {
		log.Printf("signage-service: register mark invitation: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("signage-service: register commit: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.notifyNewUser(user)

	token, err := s.issueToken(user)
	if err != nil {
		log.Printf("signage-service: register issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email := strings.TrimSpace(strings.ToLower(body.Email))
	if email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var user User
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, password, role, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		log.Printf("signage-service: login lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		log.Printf("signage-service: login issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.findUserByID(r.Context(), currentUserID(r))
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	if err != nil {
		log.Printf("signage-service: me lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// EnsureBootstrapAdmin seeds a superadmin from operator configuration when
// the users table is empty. Replaces the upstream habit of wiring a magic
// invitation code to the superadmin role.
func (s *Server) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO users (name, email, password, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, "Administrator", strings.ToLower(email), string(hash), access.RoleSuperAdmin.String(), time.Now().UTC())
	if err != nil {
		return err
	}
	log.Printf("signage-service: bootstrap superadmin %s created", email)
	return nil
}
