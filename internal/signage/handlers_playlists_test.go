package signage

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func authedRequest(method, path string, body any) *http.Request {
	var buf []byte
	if body != nil {
		buf, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("X-User-Id", "user-1")
	return req
}

func playlistScan(pl Playlist) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = pl.ID
		*dest[1].(*string) = pl.OwnerID
		*dest[2].(*string) = pl.Name
		*dest[3].(*string) = pl.Slug
		*dest[4].(*string) = pl.Orientation
		*dest[5].(*string) = pl.Visibility
		*dest[6].(**string) = pl.AccessToken
		*dest[7].(*bool) = pl.AllowUploads
		*dest[8].(**string) = pl.UploadToken
		*dest[9].(*string) = pl.UploadMode
		*dest[10].(*int) = pl.QRFrequency
		*dest[11].(*time.Time) = pl.CreatedAt
		return nil
	}
}

func testPlaylist() Playlist {
	return Playlist{
		ID:          "pl-1",
		OwnerID:     "user-1",
		Name:        "Lobby Screen",
		Slug:        "lobby-screen-a1b2c3",
		Orientation: orientationLandscape,
		Visibility:  visibilityPublic,
		UploadMode:  uploadModeAutoAdd,
		QRFrequency: 5,
		CreatedAt:   time.Now(),
	}
}

func TestHandleCreatePlaylist(t *testing.T) {
	t.Run("Defaults And Slug", func(t *testing.T) {
		var gotArgs []any
		db := &MockDB{
			QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				gotArgs = args
				pl := testPlaylist()
				pl.Name = args[1].(string)
				pl.Slug = args[2].(string)
				return &MockRow{ScanFunc: playlistScan(pl)}
			},
		}
		srv := newTestServer(db)
		r := chi.NewRouter()
		r.Post("/playlists", srv.handleCreatePlaylist)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authedRequest("POST", "/playlists", map[string]any{"name": "Café Wall #2"}))

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		slug := gotArgs[2].(string)
		if !strings.HasPrefix(slug, "caf-wall-2-") {
			t.Errorf("unexpected slug %q", slug)
		}
		// private by default, so an access token must be provisioned
		if gotArgs[4].(string) != visibilityPrivate {
			t.Errorf("expected private default, got %v", gotArgs[4])
		}
		if tok := gotArgs[5].(*string); tok == nil || *tok == "" {
			t.Error("expected an access token for a private playlist")
		}
		// uploads off by default, no upload token yet
		if gotArgs[7] != nil && gotArgs[7].(*string) != nil {
			t.Error("expected no upload token when uploads are off")
		}
	})

	t.Run("Upload Token When Enabled", func(t *testing.T) {
		var gotArgs []any
		db := &MockDB{
			QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				gotArgs = args
				return &MockRow{ScanFunc: playlistScan(testPlaylist())}
			},
		}
		srv := newTestServer(db)
		r := chi.NewRouter()
		r.Post("/playlists", srv.handleCreatePlaylist)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authedRequest("POST", "/playlists", map[string]any{
			"name": "Bar", "visibility": "public", "allowUploads": true,
		}))

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if gotArgs[5] != nil && gotArgs[5].(*string) != nil {
			t.Error("public playlist should not get an access token")
		}
		if tok := gotArgs[7].(*string); tok == nil || len(*tok) != 32 {
			t.Errorf("expected a 32-char upload token, got %v", tok)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		tests := []struct {
			name string
			body map[string]any
		}{
			{"Empty Name", map[string]any{"name": "  "}},
			{"Bad Orientation", map[string]any{"name": "X", "orientation": "diagonal"}},
			{"Bad Visibility", map[string]any{"name": "X", "visibility": "hidden"}},
			{"Bad Upload Mode", map[string]any{"name": "X", "uploadMode": "sometimes"}},
			{"QR Frequency Low", map[string]any{"name": "X", "qrFrequency": 0}},
			{"QR Frequency High", map[string]any{"name": "X", "qrFrequency": 101}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := newTestServer(&MockDB{})
				r := chi.NewRouter()
				r.Post("/playlists", srv.handleCreatePlaylist)
				w := httptest.NewRecorder()
				r.ServeHTTP(w, authedRequest("POST", "/playlists", tt.body))
				if w.Code != http.StatusBadRequest {
					t.Errorf("expected 400, got %d", w.Code)
				}
			})
		}
	})
}

func TestHandleUpdatePlaylist_Resync(t *testing.T) {
	type insertedItem struct {
		assetID  string
		order    int
		duration int
		effect   string
	}

	run := func(t *testing.T, items []map[string]any, assetCount int) (int, []insertedItem, bool, *httptest.ResponseRecorder) {
		var inserted []insertedItem
		deleted := 0
		committed := false

		tx := &MockTx{
			CommitFunc: func(ctx context.Context) error { committed = true; return nil },
			QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				if strings.Contains(sql, "FOR UPDATE") {
					pl := testPlaylist()
					return &MockRow{ScanFunc: playlistScan(pl)}
				}
				if strings.Contains(sql, "COUNT(*) FROM assets") {
					return &MockRow{ScanFunc: func(dest ...any) error {
						*dest[0].(*int) = assetCount
						return nil
					}}
				}
				return &MockRow{}
			},
			ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				switch {
				case strings.Contains(sql, "DELETE FROM playlist_items"):
					deleted++
				case strings.Contains(sql, "INSERT INTO playlist_items"):
					inserted = append(inserted, insertedItem{
						assetID:  args[1].(string),
						order:    args[2].(int),
						duration: args[3].(int),
						effect:   args[4].(string),
					})
				}
				return pgconn.CommandTag{}, nil
			},
		}
		db := &MockDB{
			BeginTxFunc: func(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
		}

		srv := newTestServer(db)
		r := chi.NewRouter()
		r.Put("/playlists/{id}", srv.handleUpdatePlaylist)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authedRequest("PUT", "/playlists/pl-1", map[string]any{"items": items}))
		return deleted, inserted, committed, w
	}

	t.Run("Renumbers And Applies Defaults", func(t *testing.T) {
		deleted, inserted, committed, w := run(t, []map[string]any{
			{"assetId": "a-1", "durationSeconds": 7},
			{"assetId": "a-2"},
			{"assetId": "a-1", "transitionEffect": "slide"},
		}, 2)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if deleted != 1 {
			t.Errorf("expected one delete, got %d", deleted)
		}
		if !committed {
			t.Error("expected commit")
		}
		if len(inserted) != 3 {
			t.Fatalf("expected 3 inserts, got %d", len(inserted))
		}
		for i, it := range inserted {
			if it.order != i {
				t.Errorf("item %d has order %d", i, it.order)
			}
		}
		if inserted[0].duration != 7 || inserted[1].duration != defaultItemDuration {
			t.Errorf("durations wrong: %v", inserted)
		}
		if inserted[1].effect != defaultTransition || inserted[2].effect != "slide" {
			t.Errorf("effects wrong: %v", inserted)
		}
	})

	t.Run("Empty List Clears", func(t *testing.T) {
		deleted, inserted, committed, w := run(t, []map[string]any{}, 0)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if deleted != 1 || len(inserted) != 0 || !committed {
			t.Errorf("expected a bare clear, got deleted=%d inserted=%d committed=%v", deleted, len(inserted), committed)
		}
	})

	t.Run("Dangling Asset Rejects Whole Batch", func(t *testing.T) {
		deleted, inserted, committed, w := run(t, []map[string]any{
			{"assetId": "a-1"},
			{"assetId": "a-missing"},
		}, 1)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
		}
		if deleted != 0 || len(inserted) != 0 || committed {
			t.Error("nothing may change when an asset reference dangles")
		}
	})

	t.Run("Negative Duration Rejected", func(t *testing.T) {
		_, _, committed, w := run(t, []map[string]any{
			{"assetId": "a-1", "durationSeconds": -1},
		}, 1)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", w.Code)
		}
		if committed {
			t.Error("expected rollback")
		}
	})
}

func TestHandleUpdatePlaylist_LazyTokens(t *testing.T) {
	var updateArgs []any
	tx := &MockTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			pl := testPlaylist() // public, no tokens
			return &MockRow{ScanFunc: playlistScan(pl)}
		},
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if strings.Contains(sql, "UPDATE playlists") {
				updateArgs = args
			}
			return pgconn.CommandTag{}, nil
		},
	}
	db := &MockDB{
		BeginTxFunc: func(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
	}

	srv := newTestServer(db)
	r := chi.NewRouter()
	r.Put("/playlists/{id}", srv.handleUpdatePlaylist)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest("PUT", "/playlists/pl-1", map[string]any{
		"visibility":   "private",
		"allowUploads": true,
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if tok := updateArgs[4].(*string); tok == nil || *tok == "" {
		t.Error("going private must provision an access token")
	}
	if tok := updateArgs[6].(*string); tok == nil || *tok == "" {
		t.Error("enabling uploads must provision an upload token")
	}
}

func TestHandleUpdatePlaylist_NotFound(t *testing.T) {
	tx := &MockTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &MockRow{ScanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	db := &MockDB{
		BeginTxFunc: func(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
	}
	srv := newTestServer(db)
	r := chi.NewRouter()
	r.Put("/playlists/{id}", srv.handleUpdatePlaylist)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest("PUT", "/playlists/pl-other", map[string]any{"name": "X"}))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleDeletePlaylist(t *testing.T) {
	t.Run("Not Found", func(t *testing.T) {
		db := &MockDB{
			ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("DELETE 0"), nil
			},
		}
		srv := newTestServer(db)
		r := chi.NewRouter()
		r.Delete("/playlists/{id}", srv.handleDeletePlaylist)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authedRequest("DELETE", "/playlists/pl-x", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("Deleted", func(t *testing.T) {
		db := &MockDB{
			ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				if args[1].(string) != "user-1" {
					t.Errorf("delete must be owner-scoped, got %v", args)
				}
				return pgconn.NewCommandTag("DELETE 1"), nil
			},
		}
		srv := newTestServer(db)
		r := chi.NewRouter()
		r.Delete("/playlists/{id}", srv.handleDeletePlaylist)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authedRequest("DELETE", "/playlists/pl-1", nil))
		if w.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", w.Code)
		}
	})
}

func TestHandleRegenerateUploadToken(t *testing.T) {
	var newToken string
	db := &MockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			newToken = args[2].(string)
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	srv := newTestServer(db)
	r := chi.NewRouter()
	r.Post("/playlists/{id}/upload-token", srv.handleRegenerateUploadToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest("POST", "/playlists/pl-1/upload-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(newToken) != 32 {
		t.Errorf("expected a 32-char token, got %q", newToken)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["uploadToken"] != newToken {
		t.Errorf("response should echo the new token: %s", w.Body.String())
	}
}
