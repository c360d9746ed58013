package signage

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/qmagix/qiosk/internal/storage"
)

const guestUploadLimit = 5 // submissions per source address per minute

type Server struct {
	db     DB
	rdb    *redis.Client
	store  storage.BlobStore
	mailer EmailSender

	jwtSecret   []byte
	tokenTTL    time.Duration
	notifyEmail string
}

func NewServer(db DB, rdb *redis.Client, store storage.BlobStore, mailer EmailSender, jwtSecret []byte, tokenTTL time.Duration, notifyEmail string) *Server {
	if mailer == nil {
		mailer = LogEmailSender{}
	}
	return &Server{
		db:          db,
		rdb:         rdb,
		store:       store,
		mailer:      mailer,
		jwtSecret:   jwtSecret,
		tokenTTL:    tokenTTL,
		notifyEmail: notifyEmail,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	// Player and guest surface: token-gated, no account required.
	r.Get("/play/{slug}", s.handlePlayBySlug)
	r.Get("/playlists/{id}/playback", s.handlePlayback)
	r.Get("/playlists/{id}/upload-info", s.handleUploadInfo)
	r.With(s.rateLimitByIP("guest-upload", guestUploadLimit, time.Minute)).
		Post("/playlists/{id}/uploads", s.handleGuestUpload)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/me", s.handleMe)
		r.Get("/dashboard", s.handleDashboard)

		r.Get("/assets", s.handleListAssets)
		r.Post("/assets", s.handleCreateAsset)
		r.Delete("/assets/{id}", s.handleDeleteAsset)

		r.Get("/playlists", s.handleListPlaylists)
		r.Post("/playlists", s.handleCreatePlaylist)
		r.Get("/playlists/{id}", s.handleGetPlaylist)
		r.Put("/playlists/{id}", s.handleUpdatePlaylist)
		r.Delete("/playlists/{id}", s.handleDeletePlaylist)
		r.Post("/playlists/{id}/upload-token", s.handleRegenerateUploadToken)

		r.Get("/playlists/{id}/pending", s.handleListPending)
		r.Post("/playlists/{id}/pending/{uploadId}/approve", s.handleApproveUpload)
		r.Post("/playlists/{id}/pending/{uploadId}/reject", s.handleRejectUpload)

		r.Get("/users", s.handleListUsers)
		r.Post("/users", s.handleCreateUser)
		r.Put("/users/{id}", s.handleUpdateUser)
		r.Delete("/users/{id}", s.handleDeleteUser)

		r.Get("/invitations", s.handleListInvitations)
		r.Post("/invitations", s.handleCreateInvitation)
		r.Put("/invitations/{id}", s.handleUpdateInvitation)
		r.Delete("/invitations/{id}", s.handleDeleteInvitation)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "signage-service",
	})
}
