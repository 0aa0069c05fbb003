package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Webhook
	WebhookToken     string
	RateLimitWebhook int // req/min

	// Mailchimp
	MailchimpAPIKey       string
	MailchimpServerPrefix string
	MailchimpAudienceID   string
	MailchimpFromName     string
	MailchimpReplyTo      string
	MailchimpTimeout      time.Duration
	MailchimpRateLimit    float64 // req/sec
	MailchimpMaxRetries   int
	MailchimpRetryBase    time.Duration
	MailchimpDoubleOptIn  bool
	MailchimpDefaultTags  []string

	// Dispatch policy
	EnableSend            bool
	ForceResend           bool
	EligibleCategorySlugs []string
	MockMode              bool
	DispatchMaxConcurrent int

	// Rendering
	PublicSiteURL string
	MediaBaseURL  string

	// Worker
	RetrySweepInterval time.Duration
	RetryMaxAge        time.Duration
	CleanupInterval    time.Duration

	// Logging
	LogRetentionDays int
}

// fileConfig はCONFIG_FILEで指定されたYAMLファイルの構造。
// 環境変数より先に適用され、環境変数で上書きできる。
type fileConfig struct {
	ServerPort string `yaml:"serverPort"`
	Mailchimp  struct {
		ServerPrefix string   `yaml:"serverPrefix"`
		AudienceID   string   `yaml:"audienceId"`
		FromName     string   `yaml:"fromName"`
		ReplyTo      string   `yaml:"replyTo"`
		DefaultTags  []string `yaml:"defaultTags"`
	} `yaml:"mailchimp"`
	Dispatch struct {
		EnableSend            *bool    `yaml:"enableSend"`
		ForceResend           *bool    `yaml:"forceResend"`
		EligibleCategorySlugs []string `yaml:"eligibleCategorySlugs"`
		MaxConcurrent         int      `yaml:"maxConcurrent"`
	} `yaml:"dispatch"`
	PublicSiteURL string `yaml:"publicSiteUrl"`
	MediaBaseURL  string `yaml:"mediaBaseUrl"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// Mailchimpの認証情報は必須ではなく、不足時はMissingCampaignSettingsで検出する。
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.WebhookToken = getEnvString("WEBHOOK_TOKEN", "")
	cfg.RateLimitWebhook = getEnvInt("RATE_LIMIT_WEBHOOK", cfg.RateLimitWebhook)

	cfg.MailchimpAPIKey = getEnvString("MAILCHIMP_API_KEY", "")
	cfg.MailchimpServerPrefix = getEnvString("MAILCHIMP_SERVER_PREFIX",
		getEnvString("MAILCHIMP_SERVER", cfg.MailchimpServerPrefix))
	cfg.MailchimpAudienceID = getEnvString("MAILCHIMP_AUDIENCE_ID", cfg.MailchimpAudienceID)
	cfg.MailchimpFromName = getEnvString("MAILCHIMP_FROM_NAME", cfg.MailchimpFromName)
	cfg.MailchimpReplyTo = getEnvString("MAILCHIMP_REPLY_TO", cfg.MailchimpReplyTo)
	cfg.MailchimpTimeout = getEnvDuration("MAILCHIMP_TIMEOUT", cfg.MailchimpTimeout)
	cfg.MailchimpRateLimit = getEnvFloat("MAILCHIMP_RATE_LIMIT", cfg.MailchimpRateLimit)
	cfg.MailchimpMaxRetries = getEnvInt("MAILCHIMP_MAX_RETRIES", cfg.MailchimpMaxRetries)
	cfg.MailchimpRetryBase = getEnvDuration("MAILCHIMP_RETRY_BASE", cfg.MailchimpRetryBase)
	cfg.MailchimpDoubleOptIn = getEnvBool("MAILCHIMP_DOUBLE_OPTIN", cfg.MailchimpDoubleOptIn)
	cfg.MailchimpDefaultTags = getEnvList("MAILCHIMP_DEFAULT_TAGS", cfg.MailchimpDefaultTags)

	cfg.EnableSend = getEnvBool("MAILCHIMP_ENABLE_SEND", cfg.EnableSend)
	cfg.ForceResend = getEnvBool("MAILCHIMP_FORCE_RESEND", cfg.ForceResend)
	cfg.EligibleCategorySlugs = getEnvList("ELIGIBLE_CATEGORY_SLUGS", cfg.EligibleCategorySlugs)
	cfg.MockMode = getEnvBool("MOCK_MODE", cfg.MockMode)
	cfg.DispatchMaxConcurrent = getEnvInt("DISPATCH_MAX_CONCURRENT", cfg.DispatchMaxConcurrent)

	cfg.PublicSiteURL = strings.TrimRight(getEnvString("PUBLIC_SITE_URL", cfg.PublicSiteURL), "/")
	cfg.MediaBaseURL = strings.TrimRight(getEnvString("MEDIA_BASE_URL", cfg.MediaBaseURL), "/")
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = cfg.PublicSiteURL
	}

	cfg.RetrySweepInterval = getEnvDuration("RETRY_SWEEP_INTERVAL", cfg.RetrySweepInterval)
	cfg.RetryMaxAge = getEnvDuration("RETRY_MAX_AGE", cfg.RetryMaxAge)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)

	cfg.LogRetentionDays = getEnvInt("LOG_RETENTION_DAYS", cfg.LogRetentionDays)

	return cfg, nil
}

// MissingCampaignSettings はキャンペーン送信に必要で未設定の環境変数名を返す。
// モックモードでは認証情報を使わないため常に空を返す。
func (c *Config) MissingCampaignSettings() []string {
	if c.MockMode {
		return nil
	}
	var missing []string
	if c.MailchimpAPIKey == "" {
		missing = append(missing, "MAILCHIMP_API_KEY")
	}
	if c.MailchimpServerPrefix == "" {
		missing = append(missing, "MAILCHIMP_SERVER_PREFIX")
	}
	if c.MailchimpAudienceID == "" {
		missing = append(missing, "MAILCHIMP_AUDIENCE_ID")
	}
	return missing
}

// MaskedAPIKey はログ出力用にマスクしたAPIキーを返す。
func (c *Config) MaskedAPIKey() string {
	if len(c.MailchimpAPIKey) <= 10 {
		if c.MailchimpAPIKey == "" {
			return "MISSING"
		}
		return "***"
	}
	return c.MailchimpAPIKey[:6] + "..." + c.MailchimpAPIKey[len(c.MailchimpAPIKey)-4:]
}

func defaultConfig() *Config {
	return &Config{
		ServerPort:            "8080",
		RateLimitWebhook:      120,
		MailchimpFromName:     "MiningDiscovery",
		MailchimpReplyTo:      "noreply@miningdiscovery.com",
		MailchimpTimeout:      10 * time.Second,
		MailchimpRateLimit:    5,
		MailchimpMaxRetries:   2,
		MailchimpRetryBase:    500 * time.Millisecond,
		MailchimpDefaultTags:  []string{"mining", "news"},
		EligibleCategorySlugs: []string{"corporate-news"},
		DispatchMaxConcurrent: 4,
		PublicSiteURL:         "https://www.miningdiscovery.com",
		RetrySweepInterval:    15 * time.Minute,
		RetryMaxAge:           72 * time.Hour,
		CleanupInterval:       24 * time.Hour,
		LogRetentionDays:      90,
	}
}

// applyFile はYAML設定ファイルの値をConfigに反映する。
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.ServerPort != "" {
		c.ServerPort = fc.ServerPort
	}
	if fc.Mailchimp.ServerPrefix != "" {
		c.MailchimpServerPrefix = fc.Mailchimp.ServerPrefix
	}
	if fc.Mailchimp.AudienceID != "" {
		c.MailchimpAudienceID = fc.Mailchimp.AudienceID
	}
	if fc.Mailchimp.FromName != "" {
		c.MailchimpFromName = fc.Mailchimp.FromName
	}
	if fc.Mailchimp.ReplyTo != "" {
		c.MailchimpReplyTo = fc.Mailchimp.ReplyTo
	}
	if len(fc.Mailchimp.DefaultTags) > 0 {
		c.MailchimpDefaultTags = fc.Mailchimp.DefaultTags
	}
	if fc.Dispatch.EnableSend != nil {
		c.EnableSend = *fc.Dispatch.EnableSend
	}
	if fc.Dispatch.ForceResend != nil {
		c.ForceResend = *fc.Dispatch.ForceResend
	}
	if len(fc.Dispatch.EligibleCategorySlugs) > 0 {
		c.EligibleCategorySlugs = fc.Dispatch.EligibleCategorySlugs
	}
	if fc.Dispatch.MaxConcurrent > 0 {
		c.DispatchMaxConcurrent = fc.Dispatch.MaxConcurrent
	}
	if fc.PublicSiteURL != "" {
		c.PublicSiteURL = fc.PublicSiteURL
	}
	if fc.MediaBaseURL != "" {
		c.MediaBaseURL = fc.MediaBaseURL
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvBool は "true"（大文字小文字を区別しない）のみを真として扱う。
func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
