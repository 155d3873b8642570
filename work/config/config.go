package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"
)

// Config holds all application configuration values for the addon server.
// It covers the listen address, backend endpoints, catalog refresh scheduling,
// logo enrichment sources, and operational toggles such as debug logging.
type Config struct {
	BaseURL          string        `json:"baseURL"`          // Public base URL of the addon (used in the manifest)
	ListenPort       int           `json:"listenPort"`       // TCP port the HTTP server binds to
	DataDir          string        `json:"dataDir"`          // Directory holding the catalog cache and logo map files
	Debug            bool          `json:"debug"`            // Enable debug logging
	ObfuscateUrls    bool          `json:"obfuscateUrls"`    // Obfuscate stream URLs in logs
	LogLevel         string        `json:"logLevel"`         // Minimum log level (DEBUG/INFO/WARN/ERROR)
	LogSignatureFull bool          `json:"logSignatureFull"` // Log full backend signatures instead of masked previews
	PingURL          string        `json:"pingURL"`          // Backend ping endpoint issuing signatures
	CatalogURL       string        `json:"catalogURL"`       // Backend catalog endpoint
	ResolveURL       string        `json:"resolveURL"`       // Backend resolve endpoint
	LogoRepoAPI      string        `json:"logoRepoAPI"`      // GitHub contents API base for the tv-logos repository
	LogoRepoRaw      string        `json:"logoRepoRaw"`      // Raw file base for the tv-logos repository
	LogoFeedURL      string        `json:"logoFeedURL"`      // M3U feed used for the Italy logo enrichment pass
	Language         string        `json:"language"`         // Backend request language field
	Region           string        `json:"region"`           // Backend request region field
	ClientVersion    string        `json:"clientVersion"`    // Backend client version field
	PingTimeout      time.Duration `json:"pingTimeout"`      // Timeout for ping requests
	CatalogTimeout   time.Duration `json:"catalogTimeout"`   // Timeout per catalog page request
	ResolveTimeout   time.Duration `json:"resolveTimeout"`   // Timeout for resolve requests
	RefreshAt        string        `json:"refreshAt"`        // Daily refresh wall-clock time, "HH:MM"
	RefreshTimezone  string        `json:"refreshTimezone"`  // IANA timezone for the daily refresh
	BootRefresh      bool          `json:"bootRefresh"`      // Refresh at startup even when a cache exists on disk
	WorkerThreads    int           `json:"workerThreads"`    // Worker pool size for logo enrichment fan-out
	RequestsPerSec   int           `json:"requestsPerSec"`   // Rate limit for outbound backend requests
	FallbackArtwork  string        `json:"fallbackArtwork"`  // Absolute artwork URL used when no logo matches
}

// ConfigFile represents the JSON file structure for marshaling/unmarshaling
// configuration. Duration fields are stored as strings (e.g. "10s") and parsed
// into time.Duration values on load.
type ConfigFile struct {
	BaseURL          string `json:"baseURL"`
	ListenPort       int    `json:"listenPort"`
	DataDir          string `json:"dataDir"`
	Debug            bool   `json:"debug"`
	ObfuscateUrls    bool   `json:"obfuscateUrls"`
	LogLevel         string `json:"logLevel"`
	LogSignatureFull bool   `json:"logSignatureFull"`
	PingURL          string `json:"pingURL"`
	CatalogURL       string `json:"catalogURL"`
	ResolveURL       string `json:"resolveURL"`
	LogoRepoAPI      string `json:"logoRepoAPI"`
	LogoRepoRaw      string `json:"logoRepoRaw"`
	LogoFeedURL      string `json:"logoFeedURL"`
	Language         string `json:"language"`
	Region           string `json:"region"`
	ClientVersion    string `json:"clientVersion"`
	PingTimeout      string `json:"pingTimeout"`    // Duration string (e.g. "12s")
	CatalogTimeout   string `json:"catalogTimeout"` // Duration string (e.g. "10s")
	ResolveTimeout   string `json:"resolveTimeout"` // Duration string (e.g. "12s")
	RefreshAt        string `json:"refreshAt"`
	RefreshTimezone  string `json:"refreshTimezone"`
	BootRefresh      *bool  `json:"bootRefresh"` // Pointer so a missing key keeps the default (true)
	WorkerThreads    int    `json:"workerThreads"`
	RequestsPerSec   int    `json:"requestsPerSec"`
	FallbackArtwork  string `json:"fallbackArtwork"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from the path in CONFIG_PATH, falling back to
//     `/settings/config.json`.
//   - Falls back to the default config if the file is missing or invalid.
//   - Runs validation to ensure safe defaults.
//
// Returns:
//   - *Config: fully validated configuration object
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/settings/config.json"
	}

	config, err := loadFromFile(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	// Ensure safe defaults for missing values
	validateAndSetDefaults(config)

	// Cache for future calls
	configCache = config

	if config.Debug {
		log.Printf("Configuration loaded:")
		log.Printf("  Base URL: %s", config.BaseURL)
		log.Printf("  Data dir: %s", config.DataDir)
		log.Printf("  Refresh: %s %s (boot refresh: %v)", config.RefreshAt, config.RefreshTimezone, config.BootRefresh)
	}

	return config
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {

	// read from the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// unmarshal the config file
	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// convert to our settings
	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		BaseURL:          cf.BaseURL,
		ListenPort:       cf.ListenPort,
		DataDir:          cf.DataDir,
		Debug:            cf.Debug,
		ObfuscateUrls:    cf.ObfuscateUrls,
		LogLevel:         cf.LogLevel,
		LogSignatureFull: cf.LogSignatureFull,
		PingURL:          cf.PingURL,
		CatalogURL:       cf.CatalogURL,
		ResolveURL:       cf.ResolveURL,
		LogoRepoAPI:      cf.LogoRepoAPI,
		LogoRepoRaw:      cf.LogoRepoRaw,
		LogoFeedURL:      cf.LogoFeedURL,
		Language:         cf.Language,
		Region:           cf.Region,
		ClientVersion:    cf.ClientVersion,
		RefreshAt:        cf.RefreshAt,
		RefreshTimezone:  cf.RefreshTimezone,
		BootRefresh:      true,
		WorkerThreads:    cf.WorkerThreads,
		RequestsPerSec:   cf.RequestsPerSec,
		FallbackArtwork:  cf.FallbackArtwork,
	}

	if cf.BootRefresh != nil {
		config.BootRefresh = *cf.BootRefresh
	}

	// Parse duration fields; empty strings keep the zero value so
	// validateAndSetDefaults fills them in.
	var err error
	if cf.PingTimeout != "" {
		if config.PingTimeout, err = time.ParseDuration(cf.PingTimeout); err != nil {
			return nil, fmt.Errorf("invalid pingTimeout: %w", err)
		}
	}
	if cf.CatalogTimeout != "" {
		if config.CatalogTimeout, err = time.ParseDuration(cf.CatalogTimeout); err != nil {
			return nil, fmt.Errorf("invalid catalogTimeout: %w", err)
		}
	}
	if cf.ResolveTimeout != "" {
		if config.ResolveTimeout, err = time.ParseDuration(cf.ResolveTimeout); err != nil {
			return nil, fmt.Errorf("invalid resolveTimeout: %w", err)
		}
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:7019",
		ListenPort:      7019,
		DataDir:         "/data",
		Debug:           false,
		ObfuscateUrls:   false,
		LogLevel:        "INFO",
		PingURL:         "https://www.vavoo.tv/api/app/ping",
		CatalogURL:      "https://vavoo.to/mediahubmx-catalog.json",
		ResolveURL:      "https://vavoo.to/mediahubmx-resolve.json",
		LogoRepoAPI:     "https://api.github.com/repos/tv-logo/tv-logos/contents/countries",
		LogoRepoRaw:     "https://raw.githubusercontent.com/tv-logo/tv-logos/main/countries",
		LogoFeedURL:     "https://raw.githubusercontent.com/nzo66/TV/main/lista.m3u",
		Language:        "de",
		Region:          "AT",
		ClientVersion:   "3.1.21",
		PingTimeout:     12 * time.Second,
		CatalogTimeout:  10 * time.Second,
		ResolveTimeout:  12 * time.Second,
		RefreshAt:       "02:00",
		RefreshTimezone: "Europe/Rome",
		BootRefresh:     true,
		WorkerThreads:   4,
		RequestsPerSec:  10,
		FallbackArtwork: "https://raw.githubusercontent.com/qwertyuiop8899/tvvoo/refs/heads/main/public/tvvoo.png",
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	defaults := getDefaultConfig()

	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.ListenPort <= 0 || config.ListenPort > 65535 {
		config.ListenPort = defaults.ListenPort
	}
	if config.DataDir == "" {
		config.DataDir = defaults.DataDir
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.PingURL == "" {
		config.PingURL = defaults.PingURL
	}
	if config.CatalogURL == "" {
		config.CatalogURL = defaults.CatalogURL
	}
	if config.ResolveURL == "" {
		config.ResolveURL = defaults.ResolveURL
	}
	if config.LogoRepoAPI == "" {
		config.LogoRepoAPI = defaults.LogoRepoAPI
	}
	if config.LogoRepoRaw == "" {
		config.LogoRepoRaw = defaults.LogoRepoRaw
	}
	if config.LogoFeedURL == "" {
		config.LogoFeedURL = defaults.LogoFeedURL
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	if config.Region == "" {
		config.Region = defaults.Region
	}
	if config.ClientVersion == "" {
		config.ClientVersion = defaults.ClientVersion
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = defaults.PingTimeout
	}
	if config.CatalogTimeout <= 0 {
		config.CatalogTimeout = defaults.CatalogTimeout
	}
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = defaults.ResolveTimeout
	}
	if !validClockTime(config.RefreshAt) {
		config.RefreshAt = defaults.RefreshAt
	}
	if config.RefreshTimezone == "" {
		config.RefreshTimezone = defaults.RefreshTimezone
	}
	if _, err := time.LoadLocation(config.RefreshTimezone); err != nil {
		config.RefreshTimezone = defaults.RefreshTimezone
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = defaults.WorkerThreads
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = defaults.RequestsPerSec
	}
	if config.FallbackArtwork == "" {
		config.FallbackArtwork = defaults.FallbackArtwork
	}
}

// validClockTime reports whether s is a parseable "HH:MM" wall-clock time.
func validClockTime(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// CreateExampleConfig creates an example config file on disk.
func CreateExampleConfig(path string) error {
	boot := true
	example := ConfigFile{
		BaseURL:         "http://localhost:7019",
		ListenPort:      7019,
		DataDir:         "/data",
		Debug:           false,
		ObfuscateUrls:   true,
		LogLevel:        "INFO",
		Language:        "de",
		Region:          "AT",
		ClientVersion:   "3.1.21",
		PingTimeout:     "12s",
		CatalogTimeout:  "10s",
		ResolveTimeout:  "12s",
		RefreshAt:       "02:00",
		RefreshTimezone: "Europe/Rome",
		BootRefresh:     &boot,
		WorkerThreads:   4,
		RequestsPerSec:  10,
	}

	// setup the data properly
	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	// write the config file
	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the configCache to nil.
// Forces a reload on the next LoadConfig() call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// ObfuscateURL masks sensitive parts of a URL for logging.
//
// Example:
//
//	Input:  "http://example.com/secret/stream.m3u8?token=abc"
//	Output: "http://example.com/***?***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}

// LogURL returns either the original URL or an obfuscated version for logging,
// depending on the ObfuscateUrls setting.
func (c *Config) LogURL(url string) string {
	if c.ObfuscateUrls {
		return ObfuscateURL(url)
	}
	return url
}
