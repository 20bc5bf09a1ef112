// Package config loads settings for the cover bot and the CLI.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. EPUBCOVER_COVER_QUALITY.
const EnvPrefix = "EPUBCOVER"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration settings for the application.
type Config struct {
	Cover CoverConfig `mapstructure:"cover"`
	Bot   BotConfig   `mapstructure:"bot"`
	Log   LogConfig   `mapstructure:"log"`
}

// CoverConfig describes the fixed cover image and its thumbnail.
type CoverConfig struct {
	Path      string `mapstructure:"path"`
	MaxWidth  int    `mapstructure:"max_width"`
	MaxHeight int    `mapstructure:"max_height"`
	Quality   int    `mapstructure:"quality"`
}

// BotConfig holds the Telegram webhook settings.
type BotConfig struct {
	Token          string   `mapstructure:"token"`
	BaseURL        string   `mapstructure:"base_url"`
	Listen         string   `mapstructure:"listen"`
	Port           int      `mapstructure:"port"`
	FilenameSuffix string   `mapstructure:"filename_suffix"`
	MaxFileSize    int64    `mapstructure:"max_file_size"`
	MaxConcurrent  int64    `mapstructure:"max_concurrent"`
	Captions       Captions `mapstructure:"captions"`
}

// Captions are the texts the bot sends back.
type Captions struct {
	Start         string `mapstructure:"start"`
	Help          string `mapstructure:"help"`
	Received      string `mapstructure:"received"`
	Success       string `mapstructure:"success"`
	NoThumbnail   string `mapstructure:"no_thumbnail"`
	RewriteFailed string `mapstructure:"rewrite_failed"`
	TooLarge      string `mapstructure:"too_large"`
	Retry         string `mapstructure:"retry"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WebhookPath is the URL path Telegram posts updates to.
func (c BotConfig) WebhookPath() string {
	return "/" + c.Token
}

// WebhookURL is the public URL registered with Telegram.
func (c BotConfig) WebhookURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.WebhookPath()
}

// Addr is the local listen address.
func (c BotConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Listen, c.Port)
}

// New returns a viper instance with defaults and environment bindings set.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by existing deployments.
	_ = v.BindEnv("bot.token", EnvPrefix+"_BOT_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("bot.base_url", EnvPrefix+"_BOT_BASE_URL", "BASE_URL")
	_ = v.BindEnv("bot.port", EnvPrefix+"_BOT_PORT", "PORT")

	v.SetDefault("cover.path", "thumbnail.jpg")
	v.SetDefault("cover.max_width", 200)
	v.SetDefault("cover.max_height", 300)
	v.SetDefault("cover.quality", 85)

	v.SetDefault("bot.base_url", "https://groky.onrender.com")
	v.SetDefault("bot.listen", "0.0.0.0")
	v.SetDefault("bot.port", 8443)
	v.SetDefault("bot.filename_suffix", "_OldTown")
	v.SetDefault("bot.max_file_size", 20*1024*1024)
	v.SetDefault("bot.max_concurrent", 4)

	v.SetDefault("bot.captions.start", "היי! אני גרוקי. לא מכיר? לא נורא...\nשלח לי קובץ, ותקבל אותו עם התמונה\nצריך עזרה? הקלד /help.")
	v.SetDefault("bot.captions.help", "הנה מה שאני עושה:\n1. שלח לי כל קובץ.\n2. אני אוסיף לו את התמונה של אולדטאון בטלגרם.\n3. תקבל את הקובץ בחזרה.\nיש שאלות? תתאפק.")
	v.SetDefault("bot.captions.received", "קיבלתי את הקובץ, רגע אחד...")
	v.SetDefault("bot.captions.success", "ספריית אולדטאון - https://t.me/OldTownew")
	v.SetDefault("bot.captions.no_thumbnail", "לא הצלחתי להוסיף תמונה, אבל הנה הקובץ שלך.")
	v.SetDefault("bot.captions.rewrite_failed", "לא הצלחתי להחליף את הכריכה, אבל הנה הקובץ שלך.")
	v.SetDefault("bot.captions.too_large", "הקובץ גדול מדי. נסה קובץ קטן יותר.")
	v.SetDefault("bot.captions.retry", "משהו השתבש. תנסה שוב?")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	return v
}

// Load reads configuration from path (optional), the environment and the
// defaults.
func Load(path string) (*Config, error) {
	v := New()
	return Read(v, path)
}

// Read reads the config file at path into v and unmarshals the result. An
// empty path looks for config.yml in the current directory and ignores it
// when missing.
func Read(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges. Bot settings are checked separately by
// ValidateBot since only the serve command needs them.
func (c *Config) Validate() error {
	var errs []error
	if c.Cover.Path == "" {
		errs = append(errs, errors.New("cover.path must be set"))
	}
	if c.Cover.MaxWidth < 1 || c.Cover.MaxHeight < 1 {
		errs = append(errs, fmt.Errorf("cover size must be positive, got %dx%d", c.Cover.MaxWidth, c.Cover.MaxHeight))
	}
	if c.Cover.Quality < 1 || c.Cover.Quality > 100 {
		errs = append(errs, fmt.Errorf("cover.quality must be 1-100, got %d", c.Cover.Quality))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug|info|warn|error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of text|json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ValidateBot checks the settings the webhook server needs.
func (c *Config) ValidateBot() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token (TELEGRAM_TOKEN) must be set"))
	}
	if !strings.HasPrefix(c.Bot.WebhookURL(), "https://") {
		errs = append(errs, fmt.Errorf("bot.base_url must start with https://, got %q", c.Bot.BaseURL))
	}
	if c.Bot.Port < 1 || c.Bot.Port > 65535 {
		errs = append(errs, fmt.Errorf("bot.port must be 1-65535, got %d", c.Bot.Port))
	}
	if c.Bot.MaxFileSize < 1 {
		errs = append(errs, fmt.Errorf("bot.max_file_size must be positive, got %d", c.Bot.MaxFileSize))
	}
	if c.Bot.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("bot.max_concurrent must be positive, got %d", c.Bot.MaxConcurrent))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
