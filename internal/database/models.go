package database

import "time"

// User is an account row. The password hash never leaves this package.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created"`
}

// Session is a server-side login session. Token is only populated when
// the session is first created; the database stores a digest.
type Session struct {
	ID        int64
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// Media is one uploaded item. Width, Height and Duration are nullable:
// images have no duration and a failed probe of an odd file may leave
// dimensions unset.
type Media struct {
	ID        int64     `json:"id"`
	Hash      string    `json:"hash"`
	MediaType string    `json:"mediaType"`
	Width     *int64    `json:"width"`
	Height    *int64    `json:"height"`
	Duration  *float64  `json:"duration"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created"`
	CreatedBy int64     `json:"createdBy"`
}

// Collection types. Every user owns exactly one DEFAULT collection,
// created at registration; uploads land in it automatically.
const (
	CollectionDefault = "DEFAULT"
	CollectionNormal  = "NORMAL"
)

type Collection struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	OwnerID   int64     `json:"ownerId"`
	CreatedAt time.Time `json:"created"`
}

// Tag types. Tags created through the API are USER tags; SYSTEM is
// reserved for tags the server manages itself.
const (
	TagUser   = "USER"
	TagSystem = "SYSTEM"
)

type Tag struct {
	ID        int64     `json:"id"`
	Namespace string    `json:"namespace"`
	TagName   string    `json:"tagName"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created"`
}

// Derive job states.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// DeriveJob is one unit of post-upload work: thumbnail plus, for
// videos, subtitle extraction.
type DeriveJob struct {
	ID        int64
	MediaID   int64
	Status    string
	Attempts  int
	LastError string
	UpdatedAt time.Time
}
