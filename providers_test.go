package cheat_report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/r4g3baby/cheat-report/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestDiscordProvider(t *testing.T, user *discordgo.User) *DiscordProvider {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"user-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenServer.Close)

	provider := NewDiscordProvider(config.DiscordOAuth{ClientID: "client", ClientSecret: "secret"}, "https://reports.example.com", false)
	provider.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   tokenServer.URL + "/authorize",
		TokenURL:  tokenServer.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	provider.me = func(_ context.Context, token *oauth2.Token) (*discordgo.User, error) {
		if token.AccessToken != "user-token" {
			return nil, errors.New("unexpected access token")
		}
		return user, nil
	}
	return provider
}

func discordCallback(query string, state string) *http.Request {
	request := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?"+query, nil)
	if state != "" {
		request.AddCookie(&http.Cookie{Name: discordStateCookie, Value: state})
	}
	return request
}

func TestDiscordAuthURL(t *testing.T) {
	provider := newTestDiscordProvider(t, nil)

	recorder := httptest.NewRecorder()
	target, err := provider.AuthURL(recorder, httptest.NewRequest(http.MethodGet, "/auth/discord", nil))
	require.NoError(t, err)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, discordStateCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, cookies[0].Value, parsed.Query().Get("state"))
	assert.Equal(t, "client", parsed.Query().Get("client_id"))
	assert.Equal(t, "identify", parsed.Query().Get("scope"))
	assert.Equal(t, "https://reports.example.com/auth/discord/callback", parsed.Query().Get("redirect_uri"))

	unconfigured := NewDiscordProvider(config.DiscordOAuth{}, "https://reports.example.com", false)
	_, err = unconfigured.AuthURL(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/discord", nil))
	assert.Error(t, err)
}

func TestDiscordIdentify(t *testing.T) {
	provider := newTestDiscordProvider(t, &discordgo.User{ID: "123", Username: "alice", GlobalName: "Alice"})

	recorder := httptest.NewRecorder()
	identity, err := provider.Identify(recorder, discordCallback("code=good-code&state=abc", "abc"))
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "123", Name: "Alice"}, identity)

	cleared := recorder.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, discordStateCookie, cleared[0].Name)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestDiscordIdentifyFallsBackToUsername(t *testing.T) {
	provider := newTestDiscordProvider(t, &discordgo.User{ID: "123", Username: "alice"})

	identity, err := provider.Identify(httptest.NewRecorder(), discordCallback("code=good-code&state=abc", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Name)
}

func TestDiscordIdentifyFailures(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		state   string
		message string
	}{
		{name: "missing state cookie", query: "code=good-code&state=abc", message: "missing oauth state"},
		{name: "state mismatch", query: "code=good-code&state=other", state: "abc", message: "state mismatch"},
		{name: "denied", query: "error=access_denied&state=abc", state: "abc", message: "access_denied"},
		{name: "failed exchange", query: "code=bad-code&state=abc", state: "abc", message: "code exchange failed"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			provider := newTestDiscordProvider(t, &discordgo.User{ID: "123", Username: "alice"})

			_, err := provider.Identify(httptest.NewRecorder(), discordCallback(test.query, test.state))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.message)
		})
	}
}

func TestDiscordIdentifyUserLookupFailure(t *testing.T) {
	provider := newTestDiscordProvider(t, nil)
	provider.me = func(context.Context, *oauth2.Token) (*discordgo.User, error) {
		return nil, errors.New("rate limited")
	}

	_, err := provider.Identify(httptest.NewRecorder(), discordCallback("code=good-code&state=abc", "abc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSteamClaimedID(t *testing.T) {
	tests := []struct {
		claimed string
		id      string
	}{
		{"https://steamcommunity.com/openid/id/76561198000000001", "76561198000000001"},
		{"http://steamcommunity.com/openid/id/76561198000000001", "76561198000000001"},
		{"https://steamcommunity.com/openid/id/7656119800000000", ""},
		{"https://steamcommunity.com/openid/id/765611980000000012", ""},
		{"https://evil.example.com/openid/id/76561198000000001", ""},
		{"https://steamcommunity.com/openid/id/76561198000000001/extra", ""},
	}

	for _, test := range tests {
		match := steamClaimedID.FindStringSubmatch(test.claimed)
		if test.id == "" {
			assert.Nil(t, match, test.claimed)
			continue
		}
		require.NotNil(t, match, test.claimed)
		assert.Equal(t, test.id, match[1])
	}
}

func TestSteamIdentifyRejectsUnsignedCallback(t *testing.T) {
	provider := NewSteamProvider(config.SteamOpenID{}, "https://reports.example.com", NewSteamProfiles(""))

	_, err := provider.Identify(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/steam/return?openid.mode=id_res", nil))
	assert.Error(t, err)
}

func TestProviderCallbackPaths(t *testing.T) {
	profiles := NewSteamProfiles("")

	assert.Equal(t, "/auth/steam/return", NewSteamProvider(config.SteamOpenID{}, "https://reports.example.com", profiles).CallbackPath())
	assert.Equal(t, "/auth/discord/callback", NewDiscordProvider(config.DiscordOAuth{}, "https://reports.example.com", false).CallbackPath())

	custom := NewDiscordProvider(config.DiscordOAuth{RedirectURL: "https://api.example.com/bind/discord/done"}, "", false)
	assert.Equal(t, "/bind/discord/done", custom.CallbackPath())
}
