package signage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

func validOrientation(s string) bool {
	return s == orientationLandscape || s == orientationPortrait
}

func validVisibility(s string) bool {
	return s == visibilityPublic || s == visibilityPrivate
}

func validUploadMode(s string) bool {
	return s == uploadModeAutoAdd || s == uploadModeRequireApproval
}

// ensureAccessToken provisions the private-access token on first need.
// Once set it is never cleared, so links keep working across visibility
// toggles.
func ensureAccessToken(pl *Playlist) {
	if pl.AccessToken == nil || *pl.AccessToken == "" {
		t := randomToken(16)
		pl.AccessToken = &t
	}
}

// ensureUploadToken provisions the guest-upload token on first enable and
// keeps it across re-disable/re-enable unless explicitly regenerated.
func ensureUploadToken(pl *Playlist) {
	if pl.UploadToken == nil || *pl.UploadToken == "" {
		t := randomToken(16)
		pl.UploadToken = &t
	}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// appendItem inserts at the end of the playback sequence. The MAX+1
// subquery runs inside the insert so concurrent appends serialize on the
// unique (playlist_id, display_order) index.
func appendItem(ctx context.Context, q rowQuerier, playlistID, assetID string, duration int, transition string) (PlaylistItem, error) {
	var it PlaylistItem
	err := q.QueryRow(ctx, `
		INSERT INTO playlist_items (playlist_id, asset_id, display_order, duration_seconds, transition_effect)
		VALUES (
			$1, $2,
			COALESCE((SELECT MAX(display_order)+1 FROM playlist_items WHERE playlist_id = $1), 0),
			$3, $4
		)
		RETURNING id, playlist_id, asset_id, display_order, duration_seconds, transition_effect, created_at
	`, playlistID, assetID, duration, transition).Scan(
		&it.ID, &it.PlaylistID, &it.AssetID, &it.DisplayOrder, &it.DurationSeconds, &it.TransitionEffect, &it.CreatedAt,
	)
	return it, err
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)

	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.user_id, p.name, p.slug, p.orientation, p.visibility, p.access_token,
		       p.allow_uploads, p.upload_token, p.upload_mode, p.qr_frequency, p.created_at,
		       COUNT(i.id)
		FROM playlists p
		LEFT JOIN playlist_items i ON i.playlist_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		log.Printf("signage-service: list playlists: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		var pl Playlist
		var count int
		if err := rows.Scan(
			&pl.ID, &pl.OwnerID, &pl.Name, &pl.Slug, &pl.Orientation, &pl.Visibility, &pl.AccessToken,
			&pl.AllowUploads, &pl.UploadToken, &pl.UploadMode, &pl.QRFrequency, &pl.CreatedAt,
			&count,
		); err != nil {
			log.Printf("signage-service: list playlists scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		pl.ItemCount = &count
		playlists = append(playlists, pl)
	}
	if err := rows.Err(); err != nil {
		log.Printf("signage-service: list playlists rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)

	var body struct {
		Name         string  `json:"name"`
		Orientation  *string `json:"orientation"`
		Visibility   *string `json:"visibility"`
		AllowUploads *bool   `json:"allowUploads"`
		UploadMode   *string `json:"uploadMode"`
		QRFrequency  *int    `json:"qrFrequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 255 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
		return
	}

	pl := Playlist{
		OwnerID:     userID,
		Name:        body.Name,
		Slug:        newSlug(body.Name),
		Orientation: orientationLandscape,
		Visibility:  visibilityPrivate,
		UploadMode:  uploadModeAutoAdd,
		QRFrequency: 5,
	}
	if body.Orientation != nil {
		if !validOrientation(*body.Orientation) {
			writeError(w, http.StatusBadRequest, `invalid orientation (must be "landscape" or "portrait")`)
			return
		}
		pl.Orientation = *body.Orientation
	}
	if body.Visibility != nil {
		if !validVisibility(*body.Visibility) {
			writeError(w, http.StatusBadRequest, `invalid visibility (must be "public" or "private")`)
			return
		}
		pl.Visibility = *body.Visibility
	}
	if body.AllowUploads != nil {
		pl.AllowUploads = *body.AllowUploads
	}
	if body.UploadMode != nil {
		if !validUploadMode(*body.UploadMode) {
			writeError(w, http.StatusBadRequest, `invalid uploadMode (must be "auto_add" or "require_approval")`)
			return
		}
		pl.UploadMode = *body.UploadMode
	}
	if body.QRFrequency != nil {
		if *body.QRFrequency < 1 || *body.QRFrequency > 100 {
			writeError(w, http.StatusBadRequest, "qrFrequency must be between 1 and 100")
			return
		}
		pl.QRFrequency = *body.QRFrequency
	}

	if pl.Visibility == visibilityPrivate {
		ensureAccessToken(&pl)
	}
	if pl.AllowUploads {
		ensureUploadToken(&pl)
	}

	created, err := scanPlaylist(s.db.QueryRow(ctx, `
		INSERT INTO playlists (user_id, name, slug, orientation, visibility, access_token,
		                       allow_uploads, upload_token, upload_mode, qr_frequency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+playlistColumns+`
	`, pl.OwnerID, pl.Name, pl.Slug, pl.Orientation, pl.Visibility, pl.AccessToken,
		pl.AllowUploads, pl.UploadToken, pl.UploadMode, pl.QRFrequency))
	if err != nil {
		log.Printf("signage-service: create playlist: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.created",
		"payload": map[string]any{"playlist": created},
	})

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")
	if playlistID == "" {
		writeError(w, http.StatusBadRequest, "missing playlist id")
		return
	}

	pl, err := s.getOwnedPlaylist(ctx, playlistID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: get playlist: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	items, err := s.listItems(ctx, playlistID)
	if err != nil {
		log.Printf("signage-service: get playlist items: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"playlist": pl,
		"items":    items,
	})
}

type itemSpec struct {
	AssetID          string          `json:"assetId"`
	DurationSeconds  *int            `json:"durationSeconds"`
	TransitionEffect *string         `json:"transitionEffect"`
	CropData         json.RawMessage `json:"cropData"`
}

// handleUpdatePlaylist applies a partial settings patch and, when "items"
// is present, replaces the whole item list in the same transaction.
// Fields absent from the body stay untouched.
func (s *Server) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")
	if playlistID == "" {
		writeError(w, http.StatusBadRequest, "missing playlist id")
		return
	}

	var body struct {
		Name         *string     `json:"name"`
		Orientation  *string     `json:"orientation"`
		Visibility   *string     `json:"visibility"`
		AllowUploads *bool       `json:"allowUploads"`
		UploadMode   *string     `json:"uploadMode"`
		QRFrequency  *int        `json:"qrFrequency"`
		Items        *[]itemSpec `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("signage-service: update playlist begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	// The row lock is the per-playlist serialization point: concurrent
	// re-syncs and setting changes queue up here.
	pl, err := scanPlaylist(tx.QueryRow(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, playlistID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: update playlist fetch: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" || len(name) > 255 {
			writeError(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
			return
		}
		pl.Name = name
	}
	if body.Orientation != nil {
		if !validOrientation(*body.Orientation) {
			writeError(w, http.StatusBadRequest, `invalid orientation (must be "landscape" or "portrait")`)
			return
		}
		pl.Orientation = *body.Orientation
	}
	if body.Visibility != nil {
		if !validVisibility(*body.Visibility) {
			writeError(w, http.StatusBadRequest, `invalid visibility (must be "public" or "private")`)
			return
		}
		pl.Visibility = *body.Visibility
		if pl.Visibility == visibilityPrivate {
			ensureAccessToken(&pl)
		}
	}
	if body.AllowUploads != nil {
		pl.AllowUploads = *body.AllowUploads
		if pl.AllowUploads {
			ensureUploadToken(&pl)
		}
	}
	if body.UploadMode != nil {
		if !validUploadMode(*body.UploadMode) {
			writeError(w, http.StatusBadRequest, `invalid uploadMode (must be "auto_add" or "require_approval")`)
			return
		}
		pl.UploadMode = *body.UploadMode
	}
	if body.QRFrequency != nil {
		if *body.QRFrequency < 1 || *body.QRFrequency > 100 {
			writeError(w, http.StatusBadRequest, "qrFrequency must be between 1 and 100")
			return
		}
		pl.QRFrequency = *body.QRFrequency
	}

	if _, err := tx.Exec(ctx, `
		UPDATE playlists
		SET name = $2,
			orientation = $3,
			visibility = $4,
			access_token = $5,
			allow_uploads = $6,
			upload_token = $7,
			upload_mode = $8,
			qr_frequency = $9
		WHERE id = $1
	`, pl.ID, pl.Name, pl.Orientation, pl.Visibility, pl.AccessToken,
		pl.AllowUploads, pl.UploadToken, pl.UploadMode, pl.QRFrequency); err != nil {
		log.Printf("signage-service: update playlist: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if body.Items != nil {
		if err := resyncItems(ctx, tx, pl.ID, *body.Items); err != nil {
			var ae *apiError
			if errors.As(err, &ae) {
				writeAPIError(w, err)
				return
			}
			log.Printf("signage-service: resync items: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("signage-service: update playlist commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	items, err := s.listItems(ctx, pl.ID)
	if err != nil {
		log.Printf("signage-service: update playlist list items: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.updated",
		"payload": map[string]any{"playlist": pl},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"playlist": pl,
		"items":    items,
	})
}

// resyncItems is the destructive replace: every existing item goes, the
// given specs come back renumbered 0..n-1. All-or-nothing: a dangling
// asset reference fails the whole call before anything is deleted.
func resyncItems(ctx context.Context, tx pgx.Tx, playlistID string, specs []itemSpec) error {
	ids := make([]string, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.AssetID == "" {
			return errValidation("each item requires an assetId")
		}
		if spec.DurationSeconds != nil && *spec.DurationSeconds < 0 {
			return errValidation("durationSeconds must be >= 0")
		}
		if !seen[spec.AssetID] {
			seen[spec.AssetID] = true
			ids = append(ids, spec.AssetID)
		}
	}

	if len(ids) > 0 {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM assets WHERE id = ANY($1::uuid[])
		`, ids).Scan(&count); err != nil {
			return err
		}
		if count != len(ids) {
			return errValidation("one or more assets do not exist")
		}
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM playlist_items WHERE playlist_id = $1
	`, playlistID); err != nil {
		return err
	}

	for index, spec := range specs {
		duration := defaultItemDuration
		if spec.DurationSeconds != nil {
			duration = *spec.DurationSeconds
		}
		transition := defaultTransition
		if spec.TransitionEffect != nil && *spec.TransitionEffect != "" {
			transition = *spec.TransitionEffect
		}
		var crop any
		if len(spec.CropData) > 0 && string(spec.CropData) != "null" {
			crop = spec.CropData
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO playlist_items (playlist_id, asset_id, display_order, duration_seconds, transition_effect, crop_data)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, playlistID, spec.AssetID, index, duration, transition, crop); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")
	if playlistID == "" {
		writeError(w, http.StatusBadRequest, "missing playlist id")
		return
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM playlists WHERE id = $1 AND user_id = $2
	`, playlistID, userID)
	if err != nil {
		log.Printf("signage-service: delete playlist: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.deleted",
		"payload": map[string]any{"playlistId": playlistID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleRegenerateUploadToken unconditionally rotates the guest token,
// cutting off any links minted from the old one.
func (s *Server) handleRegenerateUploadToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	playlistID := chi.URLParam(r, "id")
	if playlistID == "" {
		writeError(w, http.StatusBadRequest, "missing playlist id")
		return
	}

	token := randomToken(16)
	tag, err := s.db.Exec(ctx, `
		UPDATE playlists SET upload_token = $3 WHERE id = $1 AND user_id = $2
	`, playlistID, userID, token)
	if err != nil {
		log.Printf("signage-service: regenerate upload token: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"uploadToken": token})
}
