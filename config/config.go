package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// EnvPrefix is stripped from environment variables before they are merged.
// Nested keys use a double underscore, e.g. REPORT_BOT__TOKEN.
const EnvPrefix = "REPORT_"

type (
	Config struct {
		Debug    bool   `koanf:"debug"`
		Listen   string `koanf:"listen"`
		BaseURL  string `koanf:"baseurl"`
		Database string `koanf:"database"`
		SteamKey string `koanf:"steamkey"`

		JWT     JWT       `koanf:"jwt"`
		Bot     Bot       `koanf:"bot"`
		Notify  Notify    `koanf:"notify"`
		Admins  Mentions  `koanf:"admins"`
		OAuth   OAuth     `koanf:"oauth"`
		Bind    Bind      `koanf:"bind"`
		Blob    Blob      `koanf:"blob"`
		Sync    Sync      `koanf:"sync"`
		Web     Web       `koanf:"web"`
		Account Bootstrap `koanf:"account"`
		Logger  Logger    `koanf:"logger"`
	}

	JWT struct {
		Secret string        `koanf:"secret"`
		TTL    time.Duration `koanf:"ttl"`
	}

	Bot struct {
		Token   string `koanf:"token"`
		AppID   string `koanf:"appid"`
		GuildID string `koanf:"guildid"`
	}

	Notify struct {
		Channels []string `koanf:"channels"`
		Webhook  string   `koanf:"webhook"`
		Mentions Mentions `koanf:"mentions"`
	}

	Mentions struct {
		Users []string `koanf:"users"`
		Roles []string `koanf:"roles"`
	}

	OAuth struct {
		Steam   SteamOpenID  `koanf:"steam"`
		Discord DiscordOAuth `koanf:"discord"`
	}

	SteamOpenID struct {
		Realm     string `koanf:"realm"`
		ReturnURL string `koanf:"returnurl"`
	}

	DiscordOAuth struct {
		ClientID     string `koanf:"clientid"`
		ClientSecret string `koanf:"clientsecret"`
		RedirectURL  string `koanf:"redirecturl"`
	}

	Bind struct {
		TTL          time.Duration `koanf:"ttl"`
		SecureCookie bool          `koanf:"securecookie"`
		Origin       string        `koanf:"origin"`
	}

	Blob struct {
		Provider   string     `koanf:"provider"`
		StagingDir string     `koanf:"stagingdir"`
		MaxSize    int64      `koanf:"maxsize"`
		Cloudinary Cloudinary `koanf:"cloudinary"`
		S3         S3         `koanf:"s3"`
	}

	Cloudinary struct {
		CloudName string `koanf:"cloudname"`
		APIKey    string `koanf:"apikey"`
		APISecret string `koanf:"apisecret"`
		Folder    string `koanf:"folder"`
	}

	S3 struct {
		Endpoint        string `koanf:"endpoint"`
		Region          string `koanf:"region"`
		Bucket          string `koanf:"bucket"`
		AccessKeyID     string `koanf:"accesskeyid"`
		SecretAccessKey string `koanf:"secretaccesskey"`
		PublicURL       string `koanf:"publicurl"`
		Prefix          string `koanf:"prefix"`
	}

	Sync struct {
		Enabled bool   `koanf:"enabled"`
		Cron    string `koanf:"cron"`
	}

	Web struct {
		Static string `koanf:"static"`
	}

	Bootstrap struct {
		Enabled   bool   `koanf:"enabled"`
		Username  string `koanf:"username"`
		Password  string `koanf:"password"`
		SteamID   string `koanf:"steamid"`
		DiscordID string `koanf:"discordid"`
	}

	Logger struct {
		Enabled    bool   `koanf:"enabled"`
		Filename   string `koanf:"filename"`
		MaxSize    int    `koanf:"maxsize"`
		MaxAge     int    `koanf:"maxage"`
		MaxBackups int    `koanf:"maxbackups"`
		LocalTime  bool   `koanf:"localtime"`
		Compress   bool   `koanf:"compress"`
	}
)

// Default returns the configuration used for any key that is not set by the
// config file or the environment.
func Default() Config {
	return Config{
		Listen:   ":5000",
		BaseURL:  "http://localhost:5000",
		Database: "sqlite://reports.db",
		JWT:      JWT{TTL: 24 * time.Hour},
		Bind:     Bind{TTL: 10 * time.Minute, Origin: "*"},
		Blob: Blob{
			Provider:   "cloudinary",
			StagingDir: os.TempDir(),
			MaxSize:    100 << 20,
			Cloudinary: Cloudinary{Folder: "evidence"},
			S3:         S3{Region: "auto", Prefix: "evidence"},
		},
		Sync: Sync{Enabled: true, Cron: "0 0 * * *"},
		Logger: Logger{
			Filename:   "logs/cheat-report.log",
			MaxSize:    10,
			MaxAge:     30,
			MaxBackups: 5,
			Compress:   true,
		},
	}
}

// Load merges the defaults, the optional JSON file at path and the REPORT_
// environment variables, in that order.
func Load(path string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("error loading config: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret must be set")
	}

	return &cfg, nil
}
