package database

import (
	"strings"
	"time"
)

type (
	Category string
	Platform string

	Account struct {
		ID uint64 `gorm:"primarykey"`

		Username string `gorm:"size:64;uniqueIndex;not null"`
		Password string `gorm:"size:72;not null" json:"-"`

		SteamID     *string `gorm:"size:32;uniqueIndex"`
		SteamName   *string `gorm:"size:128"`
		DiscordID   *string `gorm:"size:32;uniqueIndex"`
		DiscordName *string `gorm:"size:128"`

		IsAdmin    bool `gorm:"not null;default:false"`
		IsApproved bool `gorm:"not null;default:false"`

		CreatedAt time.Time `gorm:"not null"`
		UpdatedAt time.Time `gorm:"not null"`
	}

	Report struct {
		ID uint64 `gorm:"primarykey"`

		SteamID     string   `gorm:"size:32;index;not null"`
		SteamName   string   `gorm:"size:128"`
		MatchID     string   `gorm:"size:64"`
		Category    Category `gorm:"size:16;not null"`
		Description string   `gorm:"type:text"`
		EvidenceURL string   `gorm:"size:512"`
		Approved    bool     `gorm:"index;not null;default:false"`

		ReporterID uint64   `gorm:"index;not null"`
		Reporter   *Account `gorm:"foreignKey:ReporterID;constraint:OnDelete:CASCADE"`

		CreatedAt time.Time `gorm:"index;not null"`
		UpdatedAt time.Time `gorm:"not null"`
	}
)

const (
	CategoryAimbot   Category = "aimbot"
	CategoryWallhack Category = "wallhack"
	CategoryGriefing Category = "griefing"
	CategoryOther    Category = "other"
)

const (
	PlatformSteam   Platform = "steam"
	PlatformDiscord Platform = "discord"
)

// Categories lists every accepted report category.
var Categories = []Category{CategoryAimbot, CategoryWallhack, CategoryGriefing, CategoryOther}

func ParseCategory(value string) (Category, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, category := range Categories {
		if string(category) == value {
			return category, true
		}
	}
	return "", false
}

func (platform Platform) String() string {
	switch platform {
	case PlatformSteam:
		return "Steam"
	case PlatformDiscord:
		return "Discord"
	default:
		return "Unknown"
	}
}

// Identity returns the bound external id and cached display name for
// platform, both empty when the account is not bound.
func (account Account) Identity(platform Platform) (id string, name string) {
	switch platform {
	case PlatformSteam:
		return deref(account.SteamID), deref(account.SteamName)
	case PlatformDiscord:
		return deref(account.DiscordID), deref(account.DiscordName)
	}
	return "", ""
}

func (account Account) HasDiscord() bool {
	return deref(account.DiscordID) != ""
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// Ptr returns nil for an empty string so optional columns stay NULL.
func Ptr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
