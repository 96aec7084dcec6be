package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string   `json:"serverAddress"`
	DatabasePath  string   `json:"databasePath"`
	DatabaseURL   string   `json:"databaseUrl"`
	Gallery       Gallery  `json:"gallery"`
	Sync          Sync     `json:"sync"`
	Uploader      Uploader `json:"uploader"`
	Security      Security `json:"security"`
	Logging       Logging  `json:"logging"`
}

// Gallery configuration for the local photo source
type Gallery struct {
	RootPath          string   `json:"rootPath"`
	AllowedExtensions []string `json:"allowedExtensions"`
	UseEXIF           bool     `json:"useExif"`
	Watch             bool     `json:"watch"`
	WatchDebounceMs   int      `json:"watchDebounceMs"`
}

// Sync configuration for the scan and periodic sync engine
type Sync struct {
	BatchSize               int  `json:"batchSize"`
	PeriodicIntervalMinutes int  `json:"periodicIntervalMinutes"`
	PeriodicAutoStart       bool `json:"periodicAutoStart"`
}

// Uploader selects where photos are sent
type Uploader struct {
	// Kind is "simulated" or "mirror"
	Kind             string `json:"kind"`
	SimulatedDelayMs int    `json:"simulatedDelayMs"`
	MirrorPath       string `json:"mirrorPath"`
	MaxFileSizeMB    int64  `json:"maxFileSizeMB"`

	// MirrorPreviews writes a downscaled JPEG next to each mirrored photo
	MirrorPreviews bool `json:"mirrorPreviews"`
	PreviewMaxDim  int  `json:"previewMaxDim"`
}

// Security configuration
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
	// APIKeyHash is a bcrypt hash of the key and takes precedence over APIKey
	APIKeyHash string `json:"apiKeyHash"`
}

// Logging configuration
type Logging struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
}

const (
	UploaderSimulated = "simulated"
	UploaderMirror    = "mirror"
)

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5050",
		DatabasePath:  "syncagent.db",
		Gallery: Gallery{
			RootPath: "./DCIM/Camera",
			AllowedExtensions: []string{
				".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif",
			},
			UseEXIF:         false,
			Watch:           false,
			WatchDebounceMs: 2000,
		},
		Sync: Sync{
			BatchSize:               50,
			PeriodicIntervalMinutes: 15,
			PeriodicAutoStart:       true,
		},
		Uploader: Uploader{
			Kind:             UploaderSimulated,
			SimulatedDelayMs: 100,
			MirrorPath:       "./mirror",
			MaxFileSizeMB:    50,
			MirrorPreviews:   false,
			PreviewMaxDim:    500,
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if apiKeyHash := os.Getenv("API_KEY_HASH"); apiKeyHash != "" {
		cfg.Security.APIKeyHash = apiKeyHash
	}
	if galleryPath := os.Getenv("GALLERY_PATH"); galleryPath != "" {
		cfg.Gallery.RootPath = galleryPath
	}
	if watch := os.Getenv("WATCH_GALLERY"); watch != "" {
		cfg.Gallery.Watch = watch == "true" || watch == "1"
	}
	if batch := os.Getenv("SYNC_BATCH_SIZE"); batch != "" {
		if n, err := strconv.Atoi(batch); err == nil && n > 0 {
			cfg.Sync.BatchSize = n
		}
	}
	if interval := os.Getenv("SYNC_INTERVAL_MINUTES"); interval != "" {
		if minutes, err := strconv.Atoi(interval); err == nil && minutes > 0 {
			cfg.Sync.PeriodicIntervalMinutes = minutes
		}
	}
	if kind := os.Getenv("UPLOADER"); kind != "" {
		cfg.Uploader.Kind = kind
	}
	if mirror := os.Getenv("MIRROR_PATH"); mirror != "" {
		cfg.Uploader.MirrorPath = mirror
	}
	if previews := os.Getenv("MIRROR_PREVIEWS"); previews != "" {
		cfg.Uploader.MirrorPreviews = previews == "true" || previews == "1"
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Logging.File = logFile
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Make gallery path absolute
	absPath, err := filepath.Abs(cfg.Gallery.RootPath)
	if err != nil {
		return nil, err
	}
	cfg.Gallery.RootPath = absPath

	return cfg, nil
}

// Validate checks values that the sync engine cannot run with
func (c *Config) Validate() error {
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batchSize must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.PeriodicIntervalMinutes < 1 {
		return fmt.Errorf("sync.periodicIntervalMinutes must be positive, got %d", c.Sync.PeriodicIntervalMinutes)
	}
	switch c.Uploader.Kind {
	case UploaderSimulated:
	case UploaderMirror:
		if c.Uploader.MirrorPath == "" {
			return fmt.Errorf("uploader.mirrorPath is required for the mirror uploader")
		}
		if c.Uploader.MirrorPreviews && c.Uploader.PreviewMaxDim < 16 {
			return fmt.Errorf("uploader.previewMaxDim must be at least 16, got %d", c.Uploader.PreviewMaxDim)
		}
	default:
		return fmt.Errorf("unknown uploader kind %q", c.Uploader.Kind)
	}
	return nil
}
