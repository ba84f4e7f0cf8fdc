package device

import "time"

// Platform identifies the push ecosystem a token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// Valid checks if the platform is one of the supported values.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Token is one app install's push identity. Token strings are globally
// unique: a token re-issued after an app reinstall may show up under a
// different user, in which case the registry re-homes it.
type Token struct {
	UserID     string     `json:"user_id" bson:"user_id"`
	Token      string     `json:"token" bson:"token"`
	Platform   Platform   `json:"platform" bson:"platform"`
	IsActive   bool       `json:"is_active" bson:"is_active"`
	UserAgent  string     `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	AppVersion string     `json:"app_version,omitempty" bson:"app_version,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" bson:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
}

// Meta carries optional client details supplied at registration time.
type Meta struct {
	UserAgent  string
	AppVersion string
}
