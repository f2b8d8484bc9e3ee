package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jpillora/sizestr"

	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// DefaultPort is where the local server listens unless LINKUP_LISTEN_PORT says otherwise.
const DefaultPort = 9066

type Config struct {
	Dir             string        // state, pid files and logs (ex: ~/.linkup)
	ConfigPath      string        // linkup.yml, empty = must come from --config
	ListenPort      string        // ex: ":9066"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Sessions
	SessionTTL          time.Duration // 0 = sessions never expire
	GCInterval          time.Duration // interval between expired session sweeps
	StateReloadInterval time.Duration // fallback poll of the local state file
	UpstreamTimeout     time.Duration // response header timeout when proxying
	MaxBodySize         int64         // largest accepted session document, ex: "1MB"

	// Redis (empty RedisAddr => in-memory store)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Admin endpoint restrictions
	AllowedHosts []string // optional, restrict /linkup and /preview to specific Host headers
	AllowedCIDRS []string // optional, restrict /linkup and /preview to specific IPs
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	RateBurst    int      // token bucket size per client IP
	RatePerMin   int      // tokens refilled per minute

	// Background services
	StartTimeout       time.Duration // overall budget of linkup start
	ReadyMaxAttempts   int           // readiness checks per service
	NoTunnel           bool          // skip cloudflared
	LocalDNS           bool          // run caddy and dnsmasq
	CloudflareAPIToken string        // DNS challenge token handed to caddy
	CertStorageRedis   string        // optional redis url for caddy certificate storage
}

// Load reads the environment, after merging .env files from the linkup
// directory and the working directory. Real environment variables win.
func Load() *Config {
	dir := linkupDir()
	loadDotEnv(filepath.Join(dir, ".env"), ".env")

	cfg := &Config{
		Dir:             dir,
		ConfigPath:      getenv("LINKUP_CONFIG", ""),
		ListenPort:      getenv("LINKUP_LISTEN_PORT", fmt.Sprintf(":%d", DefaultPort)),
		ShutdownTimeout: mustDuration("LINKUP_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("LINKUP_LOG_LEVEL", "info"),
		PrettyLog: mustBool("LINKUP_PRETTY_LOG", true),

		// Sessions
		SessionTTL:          mustDuration("LINKUP_SESSION_TTL", 0),
		GCInterval:          mustDuration("LINKUP_GC_INTERVAL", time.Hour),
		StateReloadInterval: mustDuration("LINKUP_STATE_RELOAD_INTERVAL", 2*time.Second),
		UpstreamTimeout:     mustDuration("LINKUP_HTTP_TIMEOUT", 30*time.Second),
		MaxBodySize:         mustSize("LINKUP_MAX_BODY_SIZE", 1<<20),

		// Redis settings
		RedisAddr:             getenv("LINKUP_REDIS_ADDR", ""),
		RedisUser:             getenv("LINKUP_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("LINKUP_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("LINKUP_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("LINKUP_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("LINKUP_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("LINKUP_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("LINKUP_TRUST_PROXY", false),
		RateBurst:    getenvInt("LINKUP_RATE_BURST", 20),
		RatePerMin:   getenvInt("LINKUP_RATE_PER_MIN", 60),

		// Background services
		StartTimeout:       mustDuration("LINKUP_START_TIMEOUT", 30*time.Second),
		ReadyMaxAttempts:   getenvInt("LINKUP_READY_MAX_ATTEMPTS", 40),
		NoTunnel:           mustBool("LINKUP_NO_TUNNEL", false),
		LocalDNS:           mustBool("LINKUP_LOCAL_DNS", false),
		CloudflareAPIToken: getenv("LINKUP_CF_API_TOKEN", ""),
		CertStorageRedis:   getenv("LINKUP_CERT_STORAGE_REDIS_URL", ""),
	}

	// Validate Redis password configuration
	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: LINKUP_REDIS_PASSWORD is required when LINKUP_REDIS_PASSWORD_REQUIRED=true")
	}

	if _, err := utils.ParsePrefixSet(cfg.AllowedCIDRS); err != nil {
		panic("❌ FATAL: LINKUP_ALLOWED_CIDRS: " + err.Error())
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if cfg.CloudflareAPIToken != "" {
			cfgCopy.CloudflareAPIToken = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Port returns the numeric listen port.
func (c *Config) Port() int {
	p := c.ListenPort
	if i := strings.LastIndex(p, ":"); i >= 0 {
		p = p[i+1:]
	}
	if n, err := strconv.Atoi(p); err == nil && n > 0 {
		return n
	}
	return DefaultPort
}

// File returns the path of a file inside the linkup directory.
func (c *Config) File(name string) string {
	return filepath.Join(c.Dir, name)
}

// StatePath is the local state file.
func (c *Config) StatePath() string {
	return c.File("state")
}

func linkupDir() string {
	if v := os.Getenv("LINKUP_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linkup"
	}
	return filepath.Join(home, ".linkup")
}

// loadDotEnv loads every existing file. godotenv.Load never overrides
// variables already present in the environment.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("[WARN] ignoring %s: %v\n", f, err)
		}
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func mustSize(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := sizestr.Parse(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
