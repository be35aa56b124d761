// Package config loads and validates environment configuration for the relay bot.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken    = "TELEGRAM_TOKEN"
	KeyAdminID          = "ADMIN_ID"
	KeyAdminIDs         = "ADMIN_IDS"
	KeyGroupsFile       = "GROUPS_FILE"
	KeyMongoURI         = "MONGO_URI"
	KeyMongoDB          = "MONGO_DB"
	KeyRelayMode        = "RELAY_MODE"
	KeyBroadcastWorkers = "BROADCAST_WORKERS"
	KeyAppEnv           = "APP_ENV"
	KeyLogLevel         = "LOG_LEVEL"
	KeyHTTPPort         = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Relay strategies for delivering a broadcast into a group.
	RelayModeCopy    = "copy"
	RelayModeForward = "forward"

	// Defaults for optional settings.
	DefaultAppEnv           = EnvProduction
	DefaultLogLevel         = "info"
	DefaultHTTPPort         = 8080
	DefaultGroupsFile       = "groups.json"
	DefaultRelayMode        = RelayModeCopy
	DefaultBroadcastWorkers = 4
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime. The bot token has no
// default on purpose: a committed credential is a defect, not a convenience.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyAdminID,
		Example:     "123456789",
		Required:    true,
		Description: "Primary administrator Telegram user_id.",
		Notes:       "Receives the startup notice and broadcast tallies.",
	},
	{
		Key:         KeyAdminIDs,
		Example:     "111,222,333",
		Description: "Comma-separated additional administrator user_ids.",
	},
	{
		Key:         KeyGroupsFile,
		Example:     DefaultGroupsFile,
		Default:     DefaultGroupsFile,
		Description: "Path of the group registry snapshot file.",
		Notes:       "Ignored when the Mongo backend is configured.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "Optional MongoDB connection string for the registry backend.",
		Notes:       "Must be set together with " + KeyMongoDB + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     "drct_news",
		Description: "MongoDB database name for the registry backend.",
	},
	{
		Key:         KeyRelayMode,
		Example:     RelayModeCopy + " / " + RelayModeForward,
		Default:     DefaultRelayMode,
		Description: "Delivery strategy for broadcasts.",
		Notes:       "copy hides the admin provenance; forward keeps the forwarded-from header.",
	},
	{
		Key:         KeyBroadcastWorkers,
		Example:     strconv.Itoa(DefaultBroadcastWorkers),
		Default:     strconv.Itoa(DefaultBroadcastWorkers),
		Description: "Bounded worker pool size for per-group delivery.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken    string
	AdminID          int64
	ExtraAdminIDs    []int64
	GroupsFile       string
	MongoURI         string
	MongoDB          string
	RelayMode        string
	BroadcastWorkers int
	AppEnv           string
	LogLevel         string
	HTTPPort         int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:           firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:    strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		GroupsFile:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyGroupsFile)), DefaultGroupsFile),
		MongoURI:         strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:          strings.TrimSpace(os.Getenv(KeyMongoDB)),
		RelayMode:        firstNonEmpty(normalizeEnv(os.Getenv(KeyRelayMode)), DefaultRelayMode),
		BroadcastWorkers: DefaultBroadcastWorkers,
		LogLevel:         firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:         DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyAdminID))
	if adminRaw == "" {
		missing = append(missing, KeyAdminID)
	} else {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminID, parseErr)
		}
		cfg.AdminID = adminID
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	extras, err := parseIDList(os.Getenv(KeyAdminIDs))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminIDs, err)
	}
	cfg.ExtraAdminIDs = extras

	if (cfg.MongoURI == "") != (cfg.MongoDB == "") {
		return Config{}, fmt.Errorf("%s and %s must be set together", KeyMongoURI, KeyMongoDB)
	}

	if cfg.RelayMode != RelayModeCopy && cfg.RelayMode != RelayModeForward {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyRelayMode, RelayModeCopy, RelayModeForward)
	}

	workersRaw := strings.TrimSpace(os.Getenv(KeyBroadcastWorkers))
	if workersRaw != "" {
		workers, parseErr := strconv.Atoi(workersRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBroadcastWorkers, parseErr)
		}
		if workers <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyBroadcastWorkers)
		}
		cfg.BroadcastWorkers = workers
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// UsesMongo reports whether the Mongo registry backend is configured.
func (c Config) UsesMongo() bool {
	return c.MongoURI != "" && c.MongoDB != ""
}

// AdminCount returns the number of distinct configured administrators.
func (c Config) AdminCount() int {
	seen := map[int64]struct{}{}
	if c.AdminID != 0 {
		seen[c.AdminID] = struct{}{}
	}
	for _, id := range c.ExtraAdminIDs {
		if id != 0 {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// FormatRedacted renders the resolved configuration with secrets masked, for
// the -config-only startup check.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + maskToken(cfg.TelegramToken),
		fmt.Sprintf("admin_id: %d", cfg.AdminID),
		fmt.Sprintf("extra_admin_ids: %d configured", len(cfg.ExtraAdminIDs)),
		"groups_file: " + cfg.GroupsFile,
		"relay_mode: " + cfg.RelayMode,
		fmt.Sprintf("broadcast_workers: %d", cfg.BroadcastWorkers),
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		fmt.Sprintf("http_port: %d", cfg.HTTPPort),
	}

	if cfg.UsesMongo() {
		lines = append(lines,
			"mongo_uri: "+redactURI(cfg.MongoURI),
			"mongo_db: "+cfg.MongoDB,
		)
	}

	return strings.Join(lines, "\n")
}

func maskToken(token string) string {
	if token == "" {
		return "(unset)"
	}
	if len(token) <= 4 {
		return "...redacted"
	}
	return token[:4] + "...redacted"
}

func redactURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}

	parsed.User = nil
	return parsed.String()
}

func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
