package signage

import (
	"context"
	"log"
)

func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		log.Printf("signage-service: migrate pgcrypto: %v", err)
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS users (
          id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          name       TEXT NOT NULL,
          email      TEXT UNIQUE NOT NULL,
          password   TEXT NOT NULL,
          role       TEXT NOT NULL DEFAULT 'regular',
          created_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS invitation_codes (
          id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          code       TEXT UNIQUE NOT NULL,
          created_by uuid REFERENCES users(id) ON DELETE SET NULL,
          is_used    BOOLEAN NOT NULL DEFAULT FALSE,
          used_by    uuid REFERENCES users(id) ON DELETE SET NULL,
          expires_at TIMESTAMPTZ,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS assets (
          id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          user_id       uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
          type          TEXT NOT NULL,
          url           TEXT NOT NULL,
          thumbnail_url TEXT NOT NULL DEFAULT '',
          filename      TEXT NOT NULL,
          mime_type     TEXT NOT NULL DEFAULT '',
          created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlists (
          id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          user_id       uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
          name          TEXT NOT NULL,
          slug          TEXT UNIQUE NOT NULL,
          orientation   TEXT NOT NULL DEFAULT 'landscape',
          visibility    TEXT NOT NULL DEFAULT 'private',
          access_token  TEXT,
          allow_uploads BOOLEAN NOT NULL DEFAULT FALSE,
          upload_token  TEXT UNIQUE,
          upload_mode   TEXT NOT NULL DEFAULT 'auto_add',
          qr_frequency  INT NOT NULL DEFAULT 5,
          created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlist_items (
          id                uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          playlist_id       uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          asset_id          uuid NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
          display_order     INT NOT NULL,
          duration_seconds  INT NOT NULL DEFAULT 10,
          transition_effect TEXT NOT NULL DEFAULT 'fade',
          crop_data         JSONB,
          created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_playlist_items_order
      ON playlist_items(playlist_id, display_order)
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS pending_uploads (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          playlist_id uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          asset_id    uuid NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
          status      TEXT NOT NULL DEFAULT 'pending',
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_pending_uploads_playlist_status
      ON pending_uploads(playlist_id, status)
    `); err != nil {
		return err
	}

	return nil
}
