package cheat_report

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/fanjindong/go-cache"
	"github.com/google/uuid"
	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

const (
	bindSessionCookie = "bind_session"
	errBindInternal   = "internal server error"
)

type (
	// BindTokenStore holds at most one bearer token per bind session until it
	// is taken or expires.
	BindTokenStore struct {
		mutex  sync.Mutex
		tokens cache.ICache
		ttl    time.Duration
	}

	Identity struct {
		ID   string
		Name string
	}

	// IdentityProvider drives one third-party redirect handshake.
	IdentityProvider interface {
		Platform() database.Platform
		// CallbackPath is the local route the third party redirects back to.
		CallbackPath() string
		// AuthURL returns where to send the browser. It may set cookies that
		// Identify later checks.
		AuthURL(w http.ResponseWriter, r *http.Request) (string, error)
		// Identify authenticates the callback request.
		Identify(w http.ResponseWriter, r *http.Request) (Identity, error)
	}

	BindResult struct {
		Platform database.Platform
		Account  *database.Account
		Identity Identity
		Token    string
	}

	// Bridge attaches a third-party identity to the account behind a bearer
	// token that was parked server-side for the length of the redirect.
	Bridge struct {
		store   *database.Store
		tokens  *Tokens
		pending *BindTokenStore
		cfg     config.Bind
		log     *zap.SugaredLogger
	}

	bindMessage struct {
		Bind  string `json:"bind"`
		Type  string `json:"type"`
		ID    string `json:"id,omitempty"`
		Name  string `json:"name,omitempty"`
		Token string `json:"token,omitempty"`
		Error string `json:"error,omitempty"`
	}
)

var bindPopup = template.Must(template.New("bind").Parse(`<!DOCTYPE html>
<html>
<body>
<script>
(function () {
  var message = {{.Message}};
  if (window.opener) {
    window.opener.postMessage(message, {{.Origin}});
  }
  window.close();
})();
</script>
</body>
</html>
`))

func NewBindTokenStore(ttl time.Duration) *BindTokenStore {
	return &BindTokenStore{tokens: cache.NewMemCache(), ttl: ttl}
}

// Put replaces whatever token the session held.
func (store *BindTokenStore) Put(sessionID, token string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.tokens.Set(sessionID, token, cache.WithEx(store.ttl))
}

// Take returns the session's token and deletes it.
func (store *BindTokenStore) Take(sessionID string) (string, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	value, ok := store.tokens.Get(sessionID)
	if !ok {
		return "", false
	}
	store.tokens.Del(sessionID)

	token, ok := value.(string)
	return token, ok && token != ""
}

func NewBridge(store *database.Store, tokens *Tokens, pending *BindTokenStore, cfg config.Bind, log *zap.SugaredLogger) *Bridge {
	return &Bridge{store: store, tokens: tokens, pending: pending, cfg: cfg, log: log}
}

// Start parks token under sessionID.
func (bridge *Bridge) Start(sessionID, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	bridge.pending.Put(sessionID, token)
	return nil
}

// Complete consumes the session's bind token whatever the outcome, then binds
// the identity returned by identify to the token's account.
func (bridge *Bridge) Complete(ctx context.Context, sessionID string, platform database.Platform, identify func() (Identity, error)) (*BindResult, error) {
	identity, identifyErr := identify()
	token, ok := bridge.pending.Take(sessionID)

	if identifyErr != nil {
		bridge.log.Warnw("third-party authentication failed",
			"platform", platform,
			"error", identifyErr,
		)
		return nil, ErrIdentityFailed
	}
	if !ok {
		return nil, ErrBindTokenMissing
	}

	claims, err := bridge.tokens.Parse(token)
	if err != nil {
		return nil, ErrInvalidBindToken
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, ErrInvalidBindToken
	}

	account, err := bridge.store.BindIdentity(ctx, accountID, platform, identity.ID, identity.Name)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	fresh, err := bridge.tokens.Issue(account)
	if err != nil {
		return nil, err
	}

	bridge.log.Infow("identity bound",
		"account", account.ID,
		"platform", platform,
		"externalID", identity.ID,
	)

	return &BindResult{Platform: platform, Account: account, Identity: identity, Token: fresh}, nil
}

// BeginHandler parks the ?token= credential and redirects into provider.
func (bridge *Bridge) BeginHandler(provider IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := bridge.sessionID(w, r)
		if err := bridge.Start(sessionID, r.URL.Query().Get("token")); err != nil {
			writeError(w, err)
			return
		}

		target, err := provider.AuthURL(w, r)
		if err != nil {
			bridge.log.Errorw("failed to build authorization url",
				"platform", provider.Platform(),
				"error", err,
			)
			bridge.pending.Take(sessionID)
			writeError(w, ErrIdentityFailed)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// CallbackHandler completes the bind and answers with a page that posts the
// outcome to its opener and closes itself.
func (bridge *Bridge) CallbackHandler(provider IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if cookie, err := r.Cookie(bindSessionCookie); err == nil {
			sessionID = cookie.Value
		}

		result, err := bridge.Complete(r.Context(), sessionID, provider.Platform(), func() (Identity, error) {
			return provider.Identify(w, r)
		})

		message := bindMessage{Bind: "success", Type: provider.Platform().String()}
		if err != nil {
			message.Bind = "fail"
			message.Error = err.Error()
			if !isBridgeError(err) {
				bridge.log.Errorw("failed to bind identity",
					"platform", provider.Platform(),
					"error", err,
				)
				message.Error = errBindInternal
			}
		} else {
			message.ID = result.Identity.ID
			message.Name = result.Identity.Name
			message.Token = result.Token
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := bindPopup.Execute(w, struct {
			Message bindMessage
			Origin  string
		}{message, bridge.cfg.Origin}); err != nil {
			bridge.log.Errorw("failed to render bind page",
				"error", err,
			)
		}
	}
}

func (bridge *Bridge) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(bindSessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sessionID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     bindSessionCookie,
		Value:    sessionID,
		Path:     "/auth",
		MaxAge:   int(bridge.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   bridge.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID
}

func isBridgeError(err error) bool {
	for _, known := range []error{
		ErrIdentityFailed, ErrBindTokenMissing, ErrInvalidBindToken, ErrAccountNotFound, ErrIdentityTaken,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
