package signage

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")

	if _, err := s.getOwnedPlaylist(ctx, playlistID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "playlist not found")
			return
		}
		log.Printf("signage-service: list pending lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.playlist_id, u.asset_id, u.status, u.created_at,
		       a.id, a.user_id, a.type, a.url, a.thumbnail_url, a.filename, a.mime_type, a.created_at
		FROM pending_uploads u
		JOIN assets a ON a.id = u.asset_id
		WHERE u.playlist_id = $1 AND u.status = 'pending'
		ORDER BY u.created_at DESC
	`, playlistID)
	if err != nil {
		log.Printf("signage-service: list pending: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	uploads := []PendingUpload{}
	for rows.Next() {
		var u PendingUpload
		var a Asset
		if err := rows.Scan(
			&u.ID, &u.PlaylistID, &u.AssetID, &u.Status, &u.CreatedAt,
			&a.ID, &a.OwnerID, &a.Type, &a.URL, &a.ThumbnailURL, &a.Filename, &a.MimeType, &a.CreatedAt,
		); err != nil {
			log.Printf("signage-service: list pending scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		u.Asset = &a
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		log.Printf("signage-service: list pending rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, uploads)
}

// handleApproveUpload moves a pending upload onto the screen. The row
// lock plus the status predicate make a double approve a clean 404.
func (s *Server) handleApproveUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")
	uploadID := chi.URLParam(r, "uploadId")

	pl, err := s.getOwnedPlaylist(ctx, playlistID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: approve lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("signage-service: approve begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	var assetID string
	err = tx.QueryRow(ctx, `
		SELECT asset_id FROM pending_uploads
		WHERE id = $1 AND playlist_id = $2 AND status = 'pending'
		FOR UPDATE
	`, uploadID, playlistID).Scan(&assetID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "pending upload not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: approve fetch: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var assetType string
	if err := tx.QueryRow(ctx, `
		SELECT type FROM assets WHERE id = $1
	`, assetID).Scan(&assetType); err != nil {
		log.Printf("signage-service: approve asset: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	duration := imageUploadDuration
	if assetType == assetTypeVideo {
		duration = videoUploadDuration
	}

	item, err := appendItem(ctx, tx, playlistID, assetID, duration, defaultTransition)
	if err != nil {
		log.Printf("signage-service: approve append: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pending_uploads SET status = 'approved' WHERE id = $1
	`, uploadID); err != nil {
		log.Printf("signage-service: approve update: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("signage-service: approve commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type": "playlist.item_added",
		"payload": map[string]any{
			"playlistId": pl.ID,
			"item":       item,
		},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Upload approved and added to playlist",
		"item":    item,
	})
}

func (s *Server) handleRejectUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")
	uploadID := chi.URLParam(r, "uploadId")

	if _, err := s.getOwnedPlaylist(ctx, playlistID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "playlist not found")
			return
		}
		log.Printf("signage-service: reject lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE pending_uploads SET status = 'rejected'
		WHERE id = $1 AND playlist_id = $2 AND status = 'pending'
	`, uploadID, playlistID)
	if err != nil {
		log.Printf("signage-service: reject: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "pending upload not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Upload rejected",
	})
}
