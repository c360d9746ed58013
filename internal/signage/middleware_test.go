package signage

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequireAuth(t *testing.T) {
	srv := newTestServer(&MockDB{})
	handler := srv.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(currentUserID(r)))
	}))

	validToken := func(t *testing.T) string {
		t.Helper()
		token, err := srv.issueToken(User{ID: "user-1", Email: "owner@example.com"})
		if err != nil {
			t.Fatal(err)
		}
		return token
	}

	t.Run("Missing Header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("Not Bearer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("Garbage Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		other := NewServer(&MockDB{}, nil, nil, LogEmailSender{}, []byte("other-secret"), time.Hour, "")
		token, err := other.issueToken(User{ID: "user-1"})
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("Expired Token", func(t *testing.T) {
		expired := NewServer(&MockDB{}, nil, nil, LogEmailSender{}, []byte("test-secret"), -time.Hour, "")
		token, err := expired.issueToken(User{ID: "user-1"})
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("Valid Token Sets Identity", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+validToken(t))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if w.Body.String() != "user-1" {
			t.Errorf("expected user-1, got %q", w.Body.String())
		}
	})

	t.Run("Spoofed Header Is Discarded", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("X-User-Id", "victim")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})
}

func TestRateLimitByIP_NoRedisIsNoop(t *testing.T) {
	srv := newTestServer(&MockDB{})
	called := 0
	handler := srv.rateLimitByIP("test", 1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/uploads", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", w.Code)
		}
	}
	if called != 5 {
		t.Errorf("expected 5 calls, got %d", called)
	}
}
