package signage

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/qmagix/qiosk/internal/access"
)

// requireRole loads the caller and checks their rank. Non-admins get a
// 403 rather than a 404: the user list is not a secret resource, just a
// gated one.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, required access.Role) (User, access.Role, bool) {
	actor, err := s.findUserByID(r.Context(), currentUserID(r))
	if err != nil {
		log.Printf("signage-service: load actor: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return User{}, 0, false
	}
	role, _ := access.ParseRole(actor.Role)
	if !access.RoleAtLeast(role, required) {
		writeError(w, http.StatusForbidden, "admin access required")
		return User{}, 0, false
	}
	return actor, role, true
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, _, ok := s.requireRole(w, r, access.RoleAdmin); !ok {
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, role, created_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		log.Printf("signage-service: list users: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			log.Printf("signage-service: list users scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		log.Printf("signage-service: list users rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, actorRole, ok := s.requireRole(w, r, access.RoleAdmin)
	if !ok {
		return
	}

	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if body.Name == "" || len(body.Name) > 255 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
		return
	}
	if !strings.Contains(body.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if body.Role == "" {
		body.Role = "regular"
	}
	newRole, valid := access.ParseRole(body.Role)
	if !valid {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if !access.CanAssignRole(actorRole, newRole) {
		writeError(w, http.StatusForbidden, "only a superadmin can assign that role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("signage-service: hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var u User
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, role, created_at
	`, body.Name, body.Email, string(hash), newRole.String()).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt,
	)
	if isDuplicateKey(err) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		log.Printf("signage-service: create user: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, actorRole, ok := s.requireRole(w, r, access.RoleAdmin)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "id")

	var body struct {
		Name     *string `json:"name"`
		Email    *string `json:"email"`
		Password *string `json:"password"`
		Role     *string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target, err := s.findUserByID(ctx, targetID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: update user lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	targetRole, _ := access.ParseRole(target.Role)
	if !access.CanModifyUser(actorRole, targetRole) {
		writeError(w, http.StatusForbidden, "cannot modify this user")
		return
	}

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" || len(name) > 255 {
			writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
			return
		}
		target.Name = name
	}
	if body.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*body.Email))
		if !strings.Contains(email, "@") {
			writeError(w, http.StatusBadRequest, "a valid email is required")
			return
		}
		target.Email = email
	}
	if body.Password != nil {
		if len(*body.Password) < 8 {
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*body.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("signage-service: hash password: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		target.PasswordHash = string(hash)
	}
	if body.Role != nil {
		newRole, valid := access.ParseRole(*body.Role)
		if !valid {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		if !access.CanAssignRole(actorRole, newRole) {
			writeError(w, http.StatusForbidden, "only a superadmin can assign that role")
			return
		}
		target.Role = newRole.String()
	}

	err = s.db.QueryRow(ctx, `
		UPDATE users
		SET name = $2, email = $3, password = $4, role = $5
		WHERE id = $1
		RETURNING id, name, email, role, created_at
	`, target.ID, target.Name, target.Email, target.PasswordHash, target.Role).Scan(
		&target.ID, &target.Name, &target.Email, &target.Role, &target.CreatedAt,
	)
	if isDuplicateKey(err) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		log.Printf("signage-service: update user: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, actorRole, ok := s.requireRole(w, r, access.RoleAdmin)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "id")

	if targetID == actor.ID {
		writeError(w, http.StatusUnprocessableEntity, "you cannot delete your own account")
		return
	}

	target, err := s.findUserByID(ctx, targetID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: delete user lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	targetRole, _ := access.ParseRole(target.Role)
	if !access.CanDeleteUser(actorRole, targetRole) {
		writeError(w, http.StatusForbidden, "cannot delete this user")
		return
	}

	// FK cascades remove the user's assets and playlists.
	if _, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, targetID); err != nil {
		log.Printf("signage-service: delete user: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
