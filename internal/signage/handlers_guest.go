package signage

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/qmagix/qiosk/internal/access"
)

const (
	msgUploadLive   = "Your photo is now showing!"
	msgUploadQueued = "Thank you for your contribution! It will appear after review."
)

// handleGuestUpload takes an anonymous submission against a playlist's
// upload token. Depending on the playlist mode the file either goes
// straight onto the screen or into the review queue. The stored asset
// belongs to the playlist owner.
func (s *Server) handleGuestUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	pl, err := s.getPlaylist(ctx, playlistID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: guest upload lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if !pl.AllowUploads {
		writeError(w, http.StatusForbidden, "uploads are disabled for this playlist")
		return
	}

	supplied := r.FormValue("upload_token")
	if supplied == "" {
		supplied = r.Header.Get("X-Upload-Token")
	}
	var uploadToken string
	if pl.UploadToken != nil {
		uploadToken = *pl.UploadToken
	}
	if !access.CanUpload(pl.AllowUploads, uploadToken, supplied) {
		writeError(w, http.StatusForbidden, "invalid upload token")
		return
	}

	data, filename, contentType, err := readMediaFile(w, r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	asset, err := s.storeAsset(ctx, pl.OwnerID, filename, contentType, data)
	if err != nil {
		log.Printf("signage-service: guest upload store: %v", err)
		writeAPIError(w, err)
		return
	}

	if pl.UploadMode == uploadModeAutoAdd {
		duration := imageUploadDuration
		if asset.Type == assetTypeVideo {
			duration = videoUploadDuration
		}
		item, err := appendItem(ctx, s.db, pl.ID, asset.ID, duration, defaultTransition)
		if err != nil {
			log.Printf("signage-service: guest upload append: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		item.Asset = &asset

		s.publishEvent(ctx, map[string]any{
			"type": "playlist.item_added",
			"payload": map[string]any{
				"playlistId": pl.ID,
				"item":       item,
			},
		})

		writeJSON(w, http.StatusCreated, map[string]any{
			"message": msgUploadLive,
			"mode":    uploadModeAutoAdd,
			"asset":   asset,
		})
		return
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO pending_uploads (playlist_id, asset_id, status)
		VALUES ($1, $2, 'pending')
	`, pl.ID, asset.ID); err != nil {
		log.Printf("signage-service: guest upload queue: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": msgUploadQueued,
		"mode":    uploadModeRequireApproval,
		"asset":   asset,
	})
}
