package model

import (
	"slices"
	"strconv"
	"time"
)

// Roles stored on the user record.  The role is re-read from the store on
// every authenticated request and never trusted from a token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// StarterReward is granted to every newly created account, whatever the
// creation path.
const StarterReward = "starter_badge"

// OAuth providers a record can be linked to.
const (
	ProviderVK     = "vk"
	ProviderYandex = "yandex"
)

// User represents an application user record as stored in the credential
// store.  The bson tags describe the MongoDB document; the MySQL store maps
// the same fields onto columns of the `users` table.
//
// Fields:
//
//	ID           – 12-digit zero-padded identifier, immutable primary key and JWT subject.
//	Email        – unique email address (lower-cased).
//	PasswordHash – bcrypt hash, empty for OAuth-only accounts.
//	Name         – display name, may be empty.
//	Role         – user or admin.
//	Glukocoins   – in-game balance, never touched by the auth core.
//	Rewards      – set of reward identifiers.
//	VKID         – VK user id for accounts created or matched through VK.
//	YandexID     – Yandex user id for accounts created through Yandex.
//	Avatar       – public URL of the stored avatar image.
//	Location     – opaque geolocation sub-record owned by the map feature.
type User struct {
	ID           string         `bson:"id" json:"id"`
	Email        string         `bson:"email" json:"email"`
	PasswordHash string         `bson:"password,omitempty" json:"-"`
	Name         string         `bson:"name" json:"name"`
	Role         string         `bson:"role" json:"role"`
	Glukocoins   int64          `bson:"glukocoins" json:"glukocoins"`
	Rewards      []string       `bson:"rewards" json:"rewards"`
	VKID         string         `bson:"vkId,omitempty" json:"vkId,omitempty"`
	YandexID     string         `bson:"yandexId,omitempty" json:"yandexId,omitempty"`
	Avatar       string         `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Location     map[string]any `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// IsAdmin reports whether the record carries the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// GrantReward adds id to the reward set; it is a no-op when already present.
func (u *User) GrantReward(id string) {
	if !slices.Contains(u.Rewards, id) {
		u.Rewards = append(u.Rewards, id)
	}
}

// Sequence returns the numeric value of a 12-digit identifier, or 0 when the
// identifier came from the timestamp fallback.
func (u *User) Sequence() int64 {
	if len(u.ID) != 12 {
		return 0
	}
	n, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ProviderID returns the linked id for provider, or "".
func (u *User) ProviderID(provider string) string {
	switch provider {
	case ProviderVK:
		return u.VKID
	case ProviderYandex:
		return u.YandexID
	}
	return ""
}

// SetProviderID links the record to provider.
func (u *User) SetProviderID(provider, id string) {
	switch provider {
	case ProviderVK:
		u.VKID = id
	case ProviderYandex:
		u.YandexID = id
	}
}

// Profile is the public view of a user returned by the HTTP API.
type Profile struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Role       string         `json:"role"`
	Glukocoins int64          `json:"glukocoins"`
	Rewards    []string       `json:"rewards"`
	VKID       string         `json:"vkId,omitempty"`
	Avatar     string         `json:"avatar,omitempty"`
	Location   map[string]any `json:"location,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Public strips credentials from the record.
func (u *User) Public() Profile {
	rewards := u.Rewards
	if rewards == nil {
		rewards = []string{}
	}
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Glukocoins: u.Glukocoins,
		Rewards:    rewards,
		VKID:       u.VKID,
		Avatar:     u.Avatar,
		Location:   u.Location,
		CreatedAt:  u.CreatedAt,
	}
}
