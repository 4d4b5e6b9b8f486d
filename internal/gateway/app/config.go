package app

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/plugin"
	"github.com/tabwave/stepgate/pkg/httpx"
)

// Config is the process configuration. Core fields are lifted out of
// the flat settings map at load time; the full map (including every
// plugin.* key) stays available for plugin construction and per-host
// resolution.
type Config struct {
	Env       string
	LogLevel  string
	LogFormat string
	Port      int

	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
	LedgerRetention      time.Duration

	JWTSecret    string
	JWTAlgorithm string
	JWTIssuer    string
	JWTAudience  []string
	SessionTTL   time.Duration

	CookieName     string
	CookieAge      time.Duration
	CookieSecure   bool
	CookieHTTPOnly bool

	// Legacy ticket emission; active only when the secret is set.
	TktSecret     string
	TktCookieName string
	TktIncludeIP  bool
	TktTimeout    time.Duration
	TktReissue    time.Duration
	TktDomain     string

	Datastore     string // memory, sqlite, redis
	SqliteFile    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FinderName    string
	DefaultMethod string
	RegistrarName string
	SettingsName  string
	TemplateName  string

	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	AuditFile string

	// Settings is the complete flat key/value snapshot.
	Settings plugin.Settings
}

// LoadConfig reads the flat dot-namespaced configuration file (when
// path is non-empty) and applies environment overrides on top.
func LoadConfig(path string) (Config, error) {
	settings := plugin.Settings{}

	if path != "" {
		loaded, err := readSettingsFile(path)
		if err != nil {
			return Config{}, err
		}
		settings = loaded
	}

	// Environment wins over the file for every dot key, spelled
	// upper-snake: jwt.secret -> STEPGATE_JWT_SECRET.
	for k := range settings {
		if v := os.Getenv(envKey(k)); v != "" {
			settings[k] = v
		}
	}
	applyEnvSettings(settings)

	cfg := Config{
		Env:       settings.GetString("env", getEnvOrDefault("ENV", "dev")),
		LogLevel:  settings.GetString("log.level", getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat: settings.GetString("log.format", getEnvOrDefault("LOG_FORMAT", "json")),
		Port:      settings.GetInt("port", getEnvIntOrDefault("PORT", 8000)),

		ShutdownGracePeriod:  settings.GetDuration("shutdown.grace", 10*time.Second),
		HousekeepingInterval: settings.GetDuration("housekeeping.interval", time.Hour),
		LedgerRetention:      settings.GetDuration("housekeeping.retention", time.Hour),

		JWTSecret:    settings.GetString("jwt.secret", ""),
		JWTAlgorithm: settings.GetString("jwt.algorithm", "HS512"),
		JWTIssuer:    settings.GetString("jwt.issuer", "stepgate"),
		JWTAudience:  httpx.ParseSpaceDelimitedFields(settings.GetString("jwt.audience", "")),
		SessionTTL:   settings.GetDuration("jwt.session.ttl", 24*time.Hour),

		CookieName:     settings.GetString("jwt.cookie.name", "stepgate_token"),
		CookieAge:      settings.GetDuration("jwt.cookie.age", 24*time.Hour),
		CookieSecure:   settings.GetBool("jwt.cookie.secure", true),
		CookieHTTPOnly: settings.GetBool("jwt.cookie.httponly", true),

		TktSecret:     settings.GetString("tkt.secret", ""),
		TktCookieName: settings.GetString("tkt.cookie.name", "auth_tkt"),
		TktIncludeIP:  settings.GetBool("tkt.include.ip", false),
		TktTimeout:    settings.GetDuration("tkt.timeout", 2*time.Hour),
		TktReissue:    settings.GetDuration("tkt.reissue", 10*time.Minute),
		TktDomain:     settings.GetString("tkt.cookie.domain", ""),

		Datastore:     settings.GetString("plugins.datastore", ""),
		SqliteFile:    settings.GetString("datastore.sqlite.file", "stepgate.db"),
		RedisAddr:     settings.GetString("datastore.redis.addr", "localhost:6379"),
		RedisPassword: settings.GetString("datastore.redis.password", ""),
		RedisDB:       settings.GetInt("datastore.redis.db", 0),

		FinderName:    settings.GetString("plugins.finder", ""),
		DefaultMethod: settings.GetString("plugins.method.default", "Email"),
		RegistrarName: settings.GetString("plugins.registrar", ""),
		SettingsName:  settings.GetString("plugins.settings", ""),
		TemplateName:  settings.GetString("plugins.template", "Basic"),

		SMTPAddr:     settings.GetString("mail.smtp.addr", ""),
		SMTPFrom:     settings.GetString("mail.from", ""),
		SMTPUsername: settings.GetString("mail.smtp.username", ""),
		SMTPPassword: settings.GetString("mail.smtp.password", ""),

		AuditFile: settings.GetString("audit.file", ""),

		Settings: settings,
	}

	return cfg, nil
}

// Validate enforces the startup invariants. Any failure here aborts
// the process before it serves a single request.
func (c Config) Validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "jwt.secret")
	}
	if len(c.JWTAudience) == 0 {
		missing = append(missing, "jwt.audience")
	}
	if c.Datastore == "" {
		missing = append(missing, "plugins.datastore")
	}
	if c.FinderName == "" {
		missing = append(missing, "plugins.finder")
	}
	if len(missing) > 0 {
		return fmt.Errorf("app: missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Datastore {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("app: unknown datastore %q", c.Datastore)
	}
	return nil
}

// readSettingsFile parses "key = value" lines. Blank lines and lines
// starting with # are ignored.
func readSettingsFile(path string) (plugin.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("app: opening config %s: %w", path, err)
	}
	defer f.Close()

	settings := plugin.Settings{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("app: %s:%d: expected key = value", path, line)
		}
		settings[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("app: reading config %s: %w", path, err)
	}
	return settings, nil
}

// applyEnvSettings folds selected environment variables into the
// settings map so a file-less deployment can configure everything
// through the environment.
func applyEnvSettings(settings plugin.Settings) {
	for _, key := range []string{
		"jwt.secret", "jwt.algorithm", "jwt.audience", "jwt.issuer",
		"plugins.datastore", "plugins.finder", "plugins.registrar",
		"plugins.settings", "plugins.template",
		"tkt.secret",
		"mail.smtp.addr", "mail.from", "mail.smtp.username", "mail.smtp.password",
		"datastore.sqlite.file", "datastore.redis.addr",
	} {
		if _, present := settings[key]; present {
			continue
		}
		if v := os.Getenv(envKey(key)); v != "" {
			settings[key] = v
		}
	}
}

func envKey(key string) string {
	return "STEPGATE_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}
