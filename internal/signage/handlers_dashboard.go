package signage

import (
	"log"
	"net/http"

	"github.com/qmagix/qiosk/internal/access"
)

// handleDashboard returns the admin overview counters plus the latest
// signups.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, _, ok := s.requireRole(w, r, access.RoleAdmin); !ok {
		return
	}

	var totalUsers, regularUsers, totalPlaylists, totalAssets int
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE role = 'regular'),
			(SELECT COUNT(*) FROM playlists),
			(SELECT COUNT(*) FROM assets)
	`).Scan(&totalUsers, &regularUsers, &totalPlaylists, &totalAssets)
	if err != nil {
		log.Printf("signage-service: dashboard counts: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, role, created_at
		FROM users
		ORDER BY created_at DESC
		LIMIT 5
	`)
	if err != nil {
		log.Printf("signage-service: dashboard recent: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	recent := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			log.Printf("signage-service: dashboard recent scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		recent = append(recent, u)
	}
	if err := rows.Err(); err != nil {
		log.Printf("signage-service: dashboard recent rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalUsers":     totalUsers,
		"regularUsers":   regularUsers,
		"totalPlaylists": totalPlaylists,
		"totalAssets":    totalAssets,
		"recentUsers":    recent,
	})
}
