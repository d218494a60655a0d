package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/commercebridge/commercebridge/internal/api"
	"github.com/commercebridge/commercebridge/internal/flow"
	"github.com/commercebridge/commercebridge/internal/genai"
	"github.com/commercebridge/commercebridge/internal/lockfile"
	"github.com/commercebridge/commercebridge/internal/shortener"
	"github.com/commercebridge/commercebridge/internal/store"
	"github.com/commercebridge/commercebridge/internal/twiliowhatsapp"
	"github.com/commercebridge/commercebridge/internal/util"
	"github.com/commercebridge/commercebridge/internal/vision"
	"github.com/commercebridge/commercebridge/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CommerceBridge state data
	DefaultStateDir = "/var/lib/commercebridge"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAppDBFileName is the default application SQLite filename
	DefaultAppDBFileName = "commercebridge.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()

	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modules := api.Modules{
		WhatsApp:  buildWhatsAppOptions(flags),
		Twilio:    buildTwilioOptions(flags),
		Store:     buildStoreOptions(flags),
		GenAI:     buildGenAIOptions(flags),
		Vision:    buildVisionOptions(flags),
		Shortener: buildShortenerOptions(flags),
		Flow:      buildFlowOptions(flags),
	}
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping CommerceBridge with configured modules", "provider", *flags.provider)
	slog.Debug("Module options counts",
		"whatsapp", len(modules.WhatsApp),
		"twilio", len(modules.Twilio),
		"store", len(modules.Store),
		"genai", len(modules.GenAI),
		"vision", len(modules.Vision),
		"shortener", len(modules.Shortener),
		"flow", len(modules.Flow),
		"api", len(apiOpts))
	if err := api.Run(ctx, modules, apiOpts...); err != nil {
		slog.Error("CommerceBridge failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("CommerceBridge exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDriver string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	NumericCode      bool

	OpenAIKey   string
	OpenAIModel string

	APIAddr          string
	Provider         string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ClipServerURL  string
	FrontendURL    string
	PublicBaseURL  string
	ShortenerTTL   time.Duration
	SupportEmail   string
	SupportPhone   string
	BannerPath     string
	SessionTimeout time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	whatsappDBDriver *string
	whatsappDBDSN    *string
	appDBDSN         *string
	openaiKey        *string
	openaiModel      *string
	apiAddr          *string
	provider         *string
	twilioSID        *string
	twilioToken      *string
	twilioFrom       *string
	redisAddr        *string
	redisPassword    *string
	redisDB          *int
	clipServerURL    *string
	frontendURL      *string
	publicBaseURL    *string
	shortenerTTL     *time.Duration
	supportEmail     *string
	supportPhone     *string
	bannerPath       *string
	sessionTimeout   *time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func defaultAppDSN(stateDir string) string {
	return filepath.Join(stateDir, DefaultAppDBFileName)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.GetEnv("COMMERCEBRIDGE_STATE_DIR", DefaultStateDir),
		WhatsAppDBDriver: util.GetEnv("WHATSAPP_DB_DRIVER", ""),
		WhatsAppDBDSN:    util.GetEnv("WHATSAPP_DB_DSN", ""),
		ApplicationDBDSN: util.GetEnv("DATABASE_DSN", util.GetEnv("DATABASE_URL", "")),
		NumericCode:      util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		OpenAIKey:        util.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      util.GetEnv("OPENAI_MODEL", ""),
		APIAddr:          util.GetEnv("API_ADDR", ""),
		Provider:         util.GetEnv("MESSAGING_PROVIDER", api.ProviderWhatsApp),
		TwilioAccountSID: util.GetEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  util.GetEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       util.GetEnv("TWILIO_FROM_NUMBER", ""),
		RedisAddr:        util.GetEnv("REDIS_ADDR", ""),
		RedisPassword:    util.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:          util.ParseIntEnv("REDIS_DB", 0),
		ClipServerURL:    util.GetEnv("CLIP_SERVER_URL", vision.DefaultBaseURL),
		FrontendURL:      util.GetEnv("FRONTEND_URL", api.DefaultFrontendURL),
		PublicBaseURL:    util.GetEnv("PUBLIC_BASE_URL", shortener.DefaultPublicBaseURL),
		ShortenerTTL:     util.ParseDurationEnv("SHORTENER_EXPIRE_MINUTES", shortener.DefaultExpiry),
		SupportEmail:     util.GetEnv("SUPPORT_EMAIL", ""),
		SupportPhone:     util.GetEnv("SUPPORT_PHONE", ""),
		BannerPath:       util.GetEnv("BANNER_PATH", ""),
		SessionTimeout:   util.ParseDurationEnv("SESSION_TIMEOUT", 0),
	}

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
		slog.Debug("No WHATSAPP_DB_DSN set, defaulting to SQLite", "dsn", config.WhatsAppDBDSN)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = defaultAppDSN(config.StateDir)
		slog.Debug("No DATABASE_DSN set, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}

	slog.Debug("environment variables loaded",
		"COMMERCEBRIDGE_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DRIVER", config.WhatsAppDBDriver,
		"DATABASE_DSN_TYPE", store.DetectDSNType(config.ApplicationDBDSN),
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_PROVIDER", config.Provider,
		"REDIS_ADDR", config.RedisAddr,
		"CLIP_SERVER_URL", config.ClipServerURL,
		"FRONTEND_URL", config.FrontendURL)

	return config
}

// parseCommandLineFlags parses args into fs with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		qrOutput:         fs.String("qr-output", "", "path to write login QR code"),
		numeric:          fs.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for CommerceBridge data (overrides $COMMERCEBRIDGE_STATE_DIR)"),
		whatsappDBDriver: fs.String("whatsapp-db-driver", config.WhatsAppDBDriver, "sql driver for the WhatsApp device store (overrides $WHATSAPP_DB_DRIVER)"),
		whatsappDBDSN:    fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "DSN for the WhatsApp device store (overrides $WHATSAPP_DB_DSN)"),
		appDBDSN:         fs.String("app-db-dsn", config.ApplicationDBDSN, "DSN for the application store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		openaiKey:        fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:      fs.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:         fs.String("provider", config.Provider, "messaging provider: whatsapp or twilio (overrides $MESSAGING_PROVIDER)"),
		twilioSID:        fs.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:      fs.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:       fs.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		redisAddr:        fs.String("redis-addr", config.RedisAddr, "Redis address for session storage (overrides $REDIS_ADDR)"),
		redisPassword:    fs.String("redis-password", config.RedisPassword, "Redis password (overrides $REDIS_PASSWORD)"),
		redisDB:          fs.Int("redis-db", config.RedisDB, "Redis database number (overrides $REDIS_DB)"),
		clipServerURL:    fs.String("clip-server-url", config.ClipServerURL, "image search server URL (overrides $CLIP_SERVER_URL)"),
		frontendURL:      fs.String("frontend-url", config.FrontendURL, "web frontend URL (overrides $FRONTEND_URL)"),
		publicBaseURL:    fs.String("public-base-url", config.PublicBaseURL, "public base URL for short links and payment pages (overrides $PUBLIC_BASE_URL)"),
		shortenerTTL:     fs.Duration("shortener-ttl", config.ShortenerTTL, "short link lifetime (overrides $SHORTENER_EXPIRE_MINUTES)"),
		supportEmail:     fs.String("support-email", config.SupportEmail, "support email shown to customers (overrides $SUPPORT_EMAIL)"),
		supportPhone:     fs.String("support-phone", config.SupportPhone, "support phone shown to customers (overrides $SUPPORT_PHONE)"),
		bannerPath:       fs.String("banner-path", config.BannerPath, "welcome banner image path (overrides $BANNER_PATH)"),
		sessionTimeout:   fs.Duration("session-timeout", config.SessionTimeout, "idle session lifetime (overrides $SESSION_TIMEOUT)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("flag parsing failed, continuing with defaults", "error", err)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"provider", *flags.provider,
		"apiAddr", *flags.apiAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"redisAddr", *flags.redisAddr)

	// Follow a changed state directory unless the DSNs were set explicitly
	if *flags.stateDir != config.StateDir {
		if *flags.whatsappDBDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsappDBDSN = defaultWhatsAppDSN(*flags.stateDir)
			slog.Debug("Updated WhatsApp DSN based on state directory", "new_state_dir", *flags.stateDir)
		}
		if *flags.appDBDSN == defaultAppDSN(config.StateDir) {
			*flags.appDBDSN = defaultAppDSN(*flags.stateDir)
			slog.Debug("Updated application DSN based on state directory", "new_state_dir", *flags.stateDir)
		}
	}

	return flags
}

// sqliteDir returns the directory holding a file-based DSN, or "" for Postgres.
func sqliteDir(dsn string) string {
	if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return filepath.Dir(path)
}

// ensureDirectoriesExist creates the state directory and any SQLite parent directories
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir, sqliteDir(*flags.appDBDSN)}
	if *flags.provider == api.ProviderWhatsApp {
		dirs = append(dirs, sqliteDir(*flags.whatsappDBDSN))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		slog.Debug("Creating directory for state", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDBDriver != "" {
		waOpts = append(waOpts, whatsapp.WithDBDriver(*flags.whatsappDBDriver))
	}
	if *flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDBDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if *flags.twilioSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.appDBDSN == "" {
		slog.Debug("No application DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.appDBDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.appDBDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.appDBDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.appDBDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

func buildVisionOptions(flags Flags) []vision.Option {
	var opts []vision.Option
	if *flags.clipServerURL != "" {
		opts = append(opts, vision.WithBaseURL(*flags.clipServerURL))
	}
	return opts
}

func buildShortenerOptions(flags Flags) []shortener.Option {
	var opts []shortener.Option
	if *flags.publicBaseURL != "" {
		opts = append(opts, shortener.WithPublicBaseURL(*flags.publicBaseURL))
	}
	if *flags.shortenerTTL > 0 {
		opts = append(opts, shortener.WithExpiry(*flags.shortenerTTL))
	}
	return opts
}

// buildFlowOptions constructs conversation flow options
func buildFlowOptions(flags Flags) []flow.Option {
	var opts []flow.Option
	if *flags.frontendURL != "" {
		opts = append(opts, flow.WithFrontendURL(*flags.frontendURL))
	}
	if *flags.publicBaseURL != "" {
		opts = append(opts, flow.WithPaymentBaseURL(*flags.publicBaseURL))
	}
	if *flags.supportEmail != "" || *flags.supportPhone != "" {
		opts = append(opts, flow.WithSupportContact(*flags.supportEmail, *flags.supportPhone))
	}
	if *flags.bannerPath != "" {
		opts = append(opts, flow.WithBannerPath(*flags.bannerPath))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.frontendURL != "" {
		apiOpts = append(apiOpts, api.WithFrontendURL(*flags.frontendURL))
	}
	if *flags.provider != "" {
		apiOpts = append(apiOpts, api.WithProvider(*flags.provider))
	}
	if *flags.redisAddr != "" {
		apiOpts = append(apiOpts, api.WithRedis(*flags.redisAddr, *flags.redisPassword, *flags.redisDB))
	}
	if *flags.sessionTimeout > 0 {
		apiOpts = append(apiOpts, api.WithSessionTimeout(*flags.sessionTimeout))
	}
	return apiOpts
}
