package signage

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/qmagix/qiosk/internal/access"
)

// playbackPayload is what the player screen consumes. Owner-only secrets
// (the access token) never leave the server here; the upload token is
// included only when guest uploads are on, because the player renders the
// QR code from it.
type playbackPayload struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Orientation  string         `json:"orientation"`
	Visibility   string         `json:"visibility"`
	AllowUploads bool           `json:"allowUploads"`
	UploadMode   string         `json:"uploadMode,omitempty"`
	UploadToken  string         `json:"uploadToken,omitempty"`
	QRFrequency  int            `json:"qrFrequency"`
	Items        []PlaylistItem `json:"items"`
}

func (s *Server) playbackFor(pl Playlist, items []PlaylistItem) playbackPayload {
	p := playbackPayload{
		ID:           pl.ID,
		Name:         pl.Name,
		Slug:         pl.Slug,
		Orientation:  pl.Orientation,
		Visibility:   pl.Visibility,
		AllowUploads: pl.AllowUploads,
		QRFrequency:  pl.QRFrequency,
		Items:        items,
	}
	if pl.AllowUploads {
		p.UploadMode = pl.UploadMode
		if pl.UploadToken != nil {
			p.UploadToken = *pl.UploadToken
		}
	}
	return p
}

// handlePlayBySlug serves the public screen URL. Private playlists are
// never reachable by slug, token or not.
func (s *Server) handlePlayBySlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")

	pl, err := scanPlaylist(s.db.QueryRow(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists
		WHERE slug = $1
	`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: play by slug: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if pl.Visibility != visibilityPublic {
		writeError(w, http.StatusForbidden, "this playlist is private")
		return
	}

	items, err := s.listItems(ctx, pl.ID)
	if err != nil {
		log.Printf("signage-service: play by slug items: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, s.playbackFor(pl, items))
}

// handlePlayback serves playback by id. Public playlists are open;
// private ones require the access token as ?token=.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	pl, err := s.getPlaylist(ctx, playlistID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: playback: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var accessToken string
	if pl.AccessToken != nil {
		accessToken = *pl.AccessToken
	}
	if !access.CanViewPlaylist(pl.Visibility == visibilityPublic, accessToken, r.URL.Query().Get("token")) {
		writeError(w, http.StatusForbidden, "invalid access token")
		return
	}

	items, err := s.listItems(ctx, pl.ID)
	if err != nil {
		log.Printf("signage-service: playback items: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, s.playbackFor(pl, items))
}

// handleUploadInfo backs the guest upload page: given a valid upload
// token it reveals just enough to render the form.
func (s *Server) handleUploadInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlistID := chi.URLParam(r, "id")

	pl, err := s.getPlaylist(ctx, playlistID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: upload info: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var uploadToken string
	if pl.UploadToken != nil {
		uploadToken = *pl.UploadToken
	}
	if !access.CanUpload(pl.AllowUploads, uploadToken, r.URL.Query().Get("token")) {
		writeError(w, http.StatusForbidden, "uploads are not available for this playlist")
		return
	}

	var count int
	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM playlist_items WHERE playlist_id = $1
	`, pl.ID).Scan(&count); err != nil {
		log.Printf("signage-service: upload info count: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":        pl.Name,
		"orientation": pl.Orientation,
		"uploadMode":  pl.UploadMode,
		"itemCount":   count,
	})
}
