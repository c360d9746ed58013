package signage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the handlers use. Tests inject mocks.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// apiError carries an HTTP status through the service helpers so handlers
// can translate failures uniformly.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func errValidation(msg string) error {
	return &apiError{status: http.StatusUnprocessableEntity, msg: msg}
}

func writeAPIError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		writeError(w, ae.status, ae.msg)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// randomToken returns 2n hex characters from crypto/rand.
func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}

// slugify lowercases and strips a name down to [a-z0-9-]. Consecutive
// separators collapse to one dash.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// newSlug derives the unique playlist slug: slugified name plus a random
// suffix. Never regenerated after creation.
func newSlug(name string) string {
	base := slugify(name)
	if base == "" {
		base = "playlist"
	}
	return base + "-" + randomToken(3)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}

func (s *Server) publishEvent(ctx context.Context, event map[string]any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("signage-service: marshal event: %v", err)
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("signage-service: publish event: %v", err)
	}
}

const playlistColumns = `id, user_id, name, slug, orientation, visibility, access_token,
       allow_uploads, upload_token, upload_mode, qr_frequency, created_at`

func scanPlaylist(row pgx.Row) (Playlist, error) {
	var pl Playlist
	err := row.Scan(
		&pl.ID,
		&pl.OwnerID,
		&pl.Name,
		&pl.Slug,
		&pl.Orientation,
		&pl.Visibility,
		&pl.AccessToken,
		&pl.AllowUploads,
		&pl.UploadToken,
		&pl.UploadMode,
		&pl.QRFrequency,
		&pl.CreatedAt,
	)
	return pl, err
}

func (s *Server) getPlaylist(ctx context.Context, id string) (Playlist, error) {
	return scanPlaylist(s.db.QueryRow(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists
		WHERE id = $1
	`, id))
}

// getOwnedPlaylist scopes the lookup to the caller, so a foreign playlist
// is indistinguishable from a missing one.
func (s *Server) getOwnedPlaylist(ctx context.Context, id, ownerID string) (Playlist, error) {
	return scanPlaylist(s.db.QueryRow(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists
		WHERE id = $1 AND user_id = $2
	`, id, ownerID))
}

func (s *Server) listItems(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.playlist_id, i.asset_id, i.display_order, i.duration_seconds,
		       i.transition_effect, i.crop_data, i.created_at,
		       a.id, a.user_id, a.type, a.url, a.thumbnail_url, a.filename, a.mime_type, a.created_at
		FROM playlist_items i
		JOIN assets a ON a.id = i.asset_id
		WHERE i.playlist_id = $1
		ORDER BY i.display_order ASC
	`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []PlaylistItem{}
	for rows.Next() {
		var it PlaylistItem
		var a Asset
		if err := rows.Scan(
			&it.ID,
			&it.PlaylistID,
			&it.AssetID,
			&it.DisplayOrder,
			&it.DurationSeconds,
			&it.TransitionEffect,
			&it.CropData,
			&it.CreatedAt,
			&a.ID,
			&a.OwnerID,
			&a.Type,
			&a.URL,
			&a.ThumbnailURL,
			&a.Filename,
			&a.MimeType,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		it.Asset = &a
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Server) findUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, password, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	return u, err
}
