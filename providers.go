package cheat_report

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
	"github.com/yohcop/openid-go"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	steamOpenIDProvider = "https://steamcommunity.com/openid"
	discordStateCookie  = "discord_oauth_state"
)

var steamClaimedID = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d{17})$`)

type (
	// SteamProvider authenticates through Steam's OpenID 2.0 endpoint and
	// looks up the persona name with the Web API.
	SteamProvider struct {
		realm     string
		returnURL string
		profiles  *SteamProfiles

		discovery openid.DiscoveryCache
		nonces    openid.NonceStore
	}

	DiscordProvider struct {
		oauth  *oauth2.Config
		secure bool
		me     func(ctx context.Context, token *oauth2.Token) (*discordgo.User, error)
	}
)

func NewSteamProvider(cfg config.SteamOpenID, baseURL string, profiles *SteamProfiles) *SteamProvider {
	realm := cfg.Realm
	if realm == "" {
		realm = baseURL + "/"
	}
	returnURL := cfg.ReturnURL
	if returnURL == "" {
		returnURL = baseURL + "/auth/steam/return"
	}

	return &SteamProvider{
		realm:     realm,
		returnURL: returnURL,
		profiles:  profiles,
		discovery: openid.NewSimpleDiscoveryCache(),
		nonces:    openid.NewSimpleNonceStore(),
	}
}

func (provider *SteamProvider) Platform() database.Platform {
	return database.PlatformSteam
}

func (provider *SteamProvider) CallbackPath() string {
	return callbackPath(provider.returnURL, "/auth/steam/return")
}

func (provider *SteamProvider) AuthURL(_ http.ResponseWriter, _ *http.Request) (string, error) {
	return openid.RedirectURL(steamOpenIDProvider, provider.returnURL, provider.realm)
}

func (provider *SteamProvider) Identify(_ http.ResponseWriter, r *http.Request) (Identity, error) {
	fullURL := provider.returnURL
	if r.URL.RawQuery != "" {
		fullURL += "?" + r.URL.RawQuery
	}

	claimed, err := openid.Verify(fullURL, provider.discovery, provider.nonces)
	if err != nil {
		return Identity{}, fmt.Errorf("openid verification failed: %w", err)
	}

	match := steamClaimedID.FindStringSubmatch(claimed)
	if match == nil {
		return Identity{}, fmt.Errorf("unexpected claimed id %q", claimed)
	}

	identity := Identity{ID: match[1]}
	if name, err := provider.profiles.Name(r.Context(), identity.ID); err == nil {
		identity.Name = name
	}
	return identity, nil
}

func NewDiscordProvider(cfg config.DiscordOAuth, baseURL string, secure bool) *DiscordProvider {
	redirectURL := cfg.RedirectURL
	if redirectURL == "" {
		redirectURL = baseURL + "/auth/discord/callback"
	}

	return &DiscordProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify"},
			Endpoint:     endpoints.Discord,
		},
		secure: secure,
		me:     discordUser,
	}
}

func (provider *DiscordProvider) Platform() database.Platform {
	return database.PlatformDiscord
}

func (provider *DiscordProvider) CallbackPath() string {
	return callbackPath(provider.oauth.RedirectURL, "/auth/discord/callback")
}

func (provider *DiscordProvider) AuthURL(w http.ResponseWriter, _ *http.Request) (string, error) {
	if provider.oauth.ClientID == "" {
		return "", errors.New("discord oauth is not configured")
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     discordStateCookie,
		Value:    state,
		Path:     "/auth/discord",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   provider.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return provider.oauth.AuthCodeURL(state), nil
}

func (provider *DiscordProvider) Identify(w http.ResponseWriter, r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(discordStateCookie)
	if err != nil {
		return Identity{}, errors.New("missing oauth state")
	}
	http.SetCookie(w, &http.Cookie{Name: discordStateCookie, Path: "/auth/discord", MaxAge: -1})

	query := r.URL.Query()
	if errorCode := query.Get("error"); errorCode != "" {
		return Identity{}, fmt.Errorf("authorization denied: %s", errorCode)
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(query.Get("state"))) != 1 {
		return Identity{}, errors.New("oauth state mismatch")
	}

	token, err := provider.oauth.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		return Identity{}, fmt.Errorf("code exchange failed: %w", err)
	}

	user, err := provider.me(r.Context(), token)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to fetch discord user: %w", err)
	}

	name := user.GlobalName
	if name == "" {
		name = user.Username
	}
	return Identity{ID: user.ID, Name: name}, nil
}

func discordUser(ctx context.Context, token *oauth2.Token) (*discordgo.User, error) {
	session, err := discordgo.New("Bearer " + token.AccessToken)
	if err != nil {
		return nil, err
	}
	return session.User("@me", discordgo.WithContext(ctx))
}

func callbackPath(redirectURL, fallback string) string {
	parsed, err := url.Parse(redirectURL)
	if err != nil || parsed.Path == "" {
		return fallback
	}
	return parsed.Path
}
