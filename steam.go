package cheat_report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Acidic9/go-steam/steamapi"
	"github.com/Acidic9/go-steam/steamid"
	"github.com/fanjindong/go-cache"
)

var errSteamDisabled = errors.New("steam web api key not configured")

type (
	SteamProfile struct {
		SteamID    steamid.ID64
		Name       string
		AvatarURL  string
		ProfileURL string
	}

	// SteamProfiles looks up player summaries through the Steam Web API and
	// caches them for a few hours.
	SteamProfiles struct {
		key   string
		cache cache.ICache
		ttl   time.Duration
		fetch func(steamID uint64) (*SteamProfile, error)
	}
)

func NewSteamProfiles(key string) *SteamProfiles {
	profiles := &SteamProfiles{
		key:   key,
		cache: cache.NewMemCache(),
		ttl:   12 * time.Hour,
	}
	profiles.fetch = profiles.fetchSummary
	return profiles
}

// Profile returns the cached summary for steamID or fetches it. The Web API
// client has no timeout of its own, so the wait is bounded by ctx.
func (profiles *SteamProfiles) Profile(ctx context.Context, steamID string) (*SteamProfile, error) {
	id, err := strconv.ParseUint(steamID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid steam id %q: %w", steamID, err)
	}

	if value, ok := profiles.cache.Get(steamID); ok {
		return value.(*SteamProfile), nil
	}

	type fetched struct {
		profile *SteamProfile
		err     error
	}
	done := make(chan fetched, 1)
	go func() {
		profile, err := profiles.fetch(id)
		done <- fetched{profile, err}
	}()

	var profile *SteamProfile
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-done:
		if result.err != nil {
			return nil, result.err
		}
		profile = result.profile
	}

	profiles.cache.Set(steamID, profile, cache.WithEx(profiles.ttl))
	return profile, nil
}

// Name is the current persona name for steamID.
func (profiles *SteamProfiles) Name(ctx context.Context, steamID string) (string, error) {
	profile, err := profiles.Profile(ctx, steamID)
	if err != nil {
		return "", err
	}
	return profile.Name, nil
}

func (profiles *SteamProfiles) Forget(steamID string) {
	profiles.cache.Del(steamID)
}

func (profiles *SteamProfiles) fetchSummary(steamID uint64) (*SteamProfile, error) {
	if profiles.key == "" {
		return nil, errSteamDisabled
	}

	summary, err := steamapi.NewKey(profiles.key).GetSinglePlayerSummaries(steamID)
	if err != nil {
		return nil, err
	}

	return &SteamProfile{
		SteamID:    steamid.NewID64(steamID),
		Name:       summary.PersonaName,
		AvatarURL:  summary.AvatarFull,
		ProfileURL: summary.ProfileURL,
	}, nil
}

// legacySteamID renders a 64-bit id as STEAM_X:Y:Z, or returns the input
// unchanged when it is not numeric.
func legacySteamID(steamID string) string {
	id, err := strconv.ParseUint(steamID, 10, 64)
	if err != nil {
		return steamID
	}
	return steamid.NewID64(id).ToID().String()
}
