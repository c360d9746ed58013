package signage

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qmagix/qiosk/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MiB

var allowedMediaTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/quicktime": true,
}

// readMediaFile parses the multipart form and validates the "file" part
// against the media allow-list and size cap. The form stays readable for
// other fields afterwards.
func readMediaFile(w http.ResponseWriter, r *http.Request) (data []byte, filename, contentType string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, "", "", errValidation("file is too large or invalid form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", errValidation("file is required")
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "", errValidation("cannot read uploaded file")
	}
	if len(data) > maxUploadBytes {
		return nil, "", "", errValidation("file exceeds the 50MB limit")
	}

	contentType = header.Header.Get("Content-Type")
	if !allowedMediaTypes[contentType] {
		return nil, "", "", errValidation("unsupported file type")
	}
	return data, filepath.Base(header.Filename), contentType, nil
}

// storeAsset writes the payload to the blob store and persists the asset
// record. Image thumbnails are best-effort.
func (s *Server) storeAsset(ctx context.Context, ownerID, filename, contentType string, data []byte) (Asset, error) {
	kind := assetTypeImage
	if strings.HasPrefix(contentType, "video/") {
		kind = assetTypeVideo
	}

	key := "assets/" + uuid.NewString() + "_" + filename
	url, err := s.store.Put(ctx, key, contentType, data)
	if err != nil {
		log.Printf("signage-service: blob store put: %v", err)
		return Asset{}, &apiError{status: http.StatusInternalServerError, msg: "failed to store file"}
	}

	thumbURL := ""
	if kind == assetTypeImage {
		if thumb, err := storage.Thumbnail(data); err == nil {
			if u, err := s.store.Put(ctx, key+"_thumb.jpg", "image/jpeg", thumb); err == nil {
				thumbURL = u
			}
		}
	}

	var a Asset
	err = s.db.QueryRow(ctx, `
		INSERT INTO assets (user_id, type, url, thumbnail_url, filename, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, type, url, thumbnail_url, filename, mime_type, created_at
	`, ownerID, kind, url, thumbURL, filename, contentType).Scan(
		&a.ID, &a.OwnerID, &a.Type, &a.URL, &a.ThumbnailURL, &a.Filename, &a.MimeType, &a.CreatedAt,
	)
	if err != nil {
		return Asset{}, err
	}
	return a, nil
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, url, thumbnail_url, filename, mime_type, created_at
		FROM assets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Printf("signage-service: list assets: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Type, &a.URL, &a.ThumbnailURL, &a.Filename, &a.MimeType, &a.CreatedAt); err != nil {
			log.Printf("signage-service: list assets scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		log.Printf("signage-service: list assets rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, assets)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)

	data, filename, contentType, err := readMediaFile(w, r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	asset, err := s.storeAsset(ctx, userID, filename, contentType, data)
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			writeAPIError(w, err)
			return
		}
		log.Printf("signage-service: create asset: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(r)
	assetID := chi.URLParam(r, "id")
	if assetID == "" {
		writeError(w, http.StatusBadRequest, "missing asset id")
		return
	}

	var ownerID string
	err := s.db.QueryRow(ctx, `SELECT user_id FROM assets WHERE id = $1`, assetID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		log.Printf("signage-service: delete asset fetch: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if ownerID != userID {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}

	// Playlist items referencing the asset go with it (FK cascade).
	if _, err := s.db.Exec(ctx, `DELETE FROM assets WHERE id = $1`, assetID); err != nil {
		log.Printf("signage-service: delete asset: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
