package cheat_report

import (
	"context"
	"errors"
	"strings"

	"github.com/r4g3baby/cheat-report/config"
	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

type (
	AccountService struct {
		store  *database.Store
		tokens *Tokens
		names  NameResolver
		log    *zap.SugaredLogger
	}

	Registration struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		SteamID   string `json:"steamId"`
		DiscordID string `json:"discordId"`
	}

	Session struct {
		Token       string `json:"token"`
		IsAdmin     bool   `json:"isAdmin"`
		SteamName   string `json:"steamName,omitempty"`
		DiscordName string `json:"discordName,omitempty"`
	}
)

func NewAccountService(store *database.Store, tokens *Tokens, names NameResolver, log *zap.SugaredLogger) *AccountService {
	return &AccountService{store: store, tokens: tokens, names: names, log: log}
}

// Register creates an unapproved, non-admin account.
func (service *AccountService) Register(ctx context.Context, registration Registration) (*database.Account, error) {
	username := strings.TrimSpace(registration.Username)
	if username == "" {
		return nil, invalid("username", "is required")
	}
	if len(username) > 64 {
		return nil, invalid("username", "is too long")
	}
	if len(registration.Password) < 6 {
		return nil, invalid("password", "must be at least 6 characters")
	}
	if len(registration.Password) > 72 {
		return nil, invalid("password", "must be at most 72 bytes")
	}

	hash, err := hashPassword(registration.Password)
	if err != nil {
		return nil, err
	}

	account := &database.Account{
		Username:  username,
		Password:  hash,
		SteamID:   database.Ptr(strings.TrimSpace(registration.SteamID)),
		DiscordID: database.Ptr(strings.TrimSpace(registration.DiscordID)),
	}
	if err := service.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	service.log.Infow("account registered",
		"account", account.ID,
		"username", account.Username,
	)
	return account, nil
}

func (service *AccountService) Login(ctx context.Context, username, password string) (*Session, error) {
	account, err := service.store.AccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !checkPassword(account.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if !account.IsApproved {
		return nil, ErrNotApproved
	}

	service.backfillSteamName(ctx, account)

	token, err := service.tokens.Issue(account)
	if err != nil {
		return nil, err
	}

	_, steamName := account.Identity(database.PlatformSteam)
	_, discordName := account.Identity(database.PlatformDiscord)
	return &Session{
		Token:       token,
		IsAdmin:     account.IsAdmin,
		SteamName:   steamName,
		DiscordName: discordName,
	}, nil
}

// Authenticate resolves a bearer token to its current account.
func (service *AccountService) Authenticate(ctx context.Context, token string) (*database.Account, error) {
	claims, err := service.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, ErrUnauthenticated
	}

	account, err := service.store.Account(ctx, accountID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

func (service *AccountService) Accounts(ctx context.Context) ([]database.Account, error) {
	return service.store.Accounts(ctx)
}

func (service *AccountService) Approve(ctx context.Context, id uint64) (*database.Account, error) {
	account, err := service.store.ApproveAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	service.log.Infow("account approved",
		"account", account.ID,
		"username", account.Username,
	)
	return account, nil
}

func (service *AccountService) SetAdmin(ctx context.Context, id uint64, isAdmin bool) (*database.Account, error) {
	account, err := service.store.SetAdmin(ctx, id, isAdmin)
	if err != nil {
		return nil, err
	}
	service.log.Infow("account role changed",
		"account", account.ID,
		"isAdmin", account.IsAdmin,
	)
	return account, nil
}

func (service *AccountService) Delete(ctx context.Context, id uint64) (*database.Account, error) {
	account, err := service.store.DeleteAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	service.log.Infow("account deleted",
		"account", account.ID,
		"username", account.Username,
	)
	return account, nil
}

// Bootstrap creates the configured admin account when it does not exist yet.
func (service *AccountService) Bootstrap(ctx context.Context, cfg config.Bootstrap) error {
	if !cfg.Enabled || cfg.Username == "" {
		return nil
	}

	if _, err := service.store.AccountByUsername(ctx, cfg.Username); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	hash, err := hashPassword(cfg.Password)
	if err != nil {
		return err
	}

	account := &database.Account{
		Username:   cfg.Username,
		Password:   hash,
		SteamID:    database.Ptr(cfg.SteamID),
		DiscordID:  database.Ptr(cfg.DiscordID),
		IsAdmin:    true,
		IsApproved: true,
	}
	if err := service.store.CreateAccount(ctx, account); err != nil {
		return err
	}

	service.log.Infow("created bootstrap admin account",
		"account", account.ID,
		"username", account.Username,
	)
	return nil
}

func (service *AccountService) backfillSteamName(ctx context.Context, account *database.Account) {
	steamID, steamName := account.Identity(database.PlatformSteam)
	if steamID == "" || steamName != "" || service.names == nil {
		return
	}

	name, err := service.names.Name(ctx, steamID)
	if err != nil {
		service.log.Debugw("failed to resolve steam name",
			"account", account.ID,
			"error", err,
		)
		return
	}

	if err := service.store.UpdateDisplayName(ctx, account.ID, database.PlatformSteam, name); err != nil {
		service.log.Warnw("failed to store steam name",
			"account", account.ID,
			"error", err,
		)
		return
	}
	account.SteamName = database.Ptr(name)
}
