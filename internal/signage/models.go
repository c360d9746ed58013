package signage

import (
	"encoding/json"
	"time"
)

// User is an operator account. Role is one of "regular", "admin",
// "superadmin"; the password hash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Asset is a persisted media file. Immutable after creation except
// deletion; deleting an asset cascades to playlist items referencing it.
type Asset struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Type         string    `json:"type"` // "image" | "video"
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mimeType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Playlist owns an ordered set of items. access_token exists iff the
// playlist is private; upload_token exists iff uploads were ever enabled.
// Both are provisioned lazily and never cleared by a settings toggle.
type Playlist struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Orientation  string    `json:"orientation"` // "landscape" | "portrait"
	Visibility   string    `json:"visibility"`  // "public" | "private"
	AccessToken  *string   `json:"accessToken,omitempty"`
	AllowUploads bool      `json:"allowUploads"`
	UploadToken  *string   `json:"uploadToken,omitempty"`
	UploadMode   string    `json:"uploadMode"` // "auto_add" | "require_approval"
	QRFrequency  int       `json:"qrFrequency"`
	CreatedAt    time.Time `json:"createdAt"`

	ItemCount *int `json:"itemCount,omitempty"` // list views only
}

// PlaylistItem is one slot in the playback sequence. DisplayOrder is
// contiguous from 0 after any mutating operation.
type PlaylistItem struct {
	ID               string          `json:"id"`
	PlaylistID       string          `json:"playlistId"`
	AssetID          string          `json:"assetId"`
	DisplayOrder     int             `json:"displayOrder"`
	DurationSeconds  int             `json:"durationSeconds"`
	TransitionEffect string          `json:"transitionEffect"`
	CropData         json.RawMessage `json:"cropData,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`

	Asset *Asset `json:"asset,omitempty"`
}

// PendingUpload is a guest submission awaiting moderation. Status moves
// pending -> approved or pending -> rejected exactly once; records are
// kept afterwards as an audit trail.
type PendingUpload struct {
	ID         string    `json:"id"`
	PlaylistID string    `json:"playlistId"`
	AssetID    string    `json:"assetId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`

	Asset *Asset `json:"asset,omitempty"`
}

// InvitationCode gates self-registration. A code is single-use and may
// carry an expiry.
type InvitationCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	CreatedBy *string    `json:"createdBy,omitempty"`
	IsUsed    bool       `json:"isUsed"`
	UsedBy    *string    `json:"usedBy,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

const (
	visibilityPublic  = "public"
	visibilityPrivate = "private"

	orientationLandscape = "landscape"
	orientationPortrait  = "portrait"

	uploadModeAutoAdd         = "auto_add"
	uploadModeRequireApproval = "require_approval"

	assetTypeImage = "image"
	assetTypeVideo = "video"

	uploadStatusPending  = "pending"
	uploadStatusApproved = "approved"
	uploadStatusRejected = "rejected"

	defaultTransition   = "fade"
	defaultItemDuration = 10
	imageUploadDuration = 5
	videoUploadDuration = 0
)
