// Package config loads the daemon's configuration from a key=value file
// with an environment-variable override layer, following the same
// loading idiom on both the producer and consumer binaries.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arlowood/torrentship/internal/pathmgr"
)

// WorkerConfig is one worker class's section: how many concurrent
// instances to run, and how long to sleep between Work calls (0 for a
// pure queue consumer, which blocks on its channel instead).
type WorkerConfig struct {
	NumWorkers int
	Sleep      time.Duration
}

// PathManagerConfig holds the six managed directories' raw config lines
// ("path,owner,group,dmode,fmode"), named per the daemon's path manager
// section. They are kept raw here and parsed with pathmgr.ParseDirConfig
// at wiring time, so the comma-separated line format has one owner.
type PathManagerConfig struct {
	PackageFilesDir       string
	FailedPackageFilesDir string
	UnsortedPackageDir    string
	UnknownPackageDir     string
	MasterDir             string
	NewDir                string
}

// Config holds everything either binary needs: the database connection,
// the producer HTTP surface the consumer workers call, the six managed
// directories, and per-worker-class pool sizing.
type Config struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	DispatcherInterval time.Duration

	ProducerBaseURL  string
	ProducerUsername string
	ProducerPassword string
	TokenPath        string
	TokenTTL         time.Duration
	RequestTimeout   time.Duration

	CompletedTorrentsPath string // CompletedTorrentMonitor's poll path
	PackagedTorrentsPath  string // PackagedTorrentMonitor's poll path
	PackagePath           string // CompletedTorrentPackager's POST path
	ListPath              string // PackagedTorrentLister's GET-with-body path
	DownloadPathPrefix    string // PackageDownloader's Range GET prefix

	// Producer-side: where the directory monitor watches for completed
	// torrents, and where the packaging engine writes chunks.
	ScanPath           string
	OutputPath         string
	MinPackageFileSize int64
	MaxPackageFiles    int

	APIPort int

	Paths PathManagerConfig

	Workers map[string]WorkerConfig
}

func defaultWorkers() map[string]WorkerConfig {
	return map[string]WorkerConfig{
		"CompletedTorrentMonitor": {NumWorkers: 1, Sleep: 10 * time.Second},
		"CompletedTorrentPackager": {NumWorkers: 2, Sleep: 0},
		"PackagedTorrentLister":    {NumWorkers: 2, Sleep: 0},
		"PackagedTorrentMonitor":   {NumWorkers: 1, Sleep: 10 * time.Second},
		"PackageDownloader":        {NumWorkers: 4, Sleep: 0},
		"PackageExtractor":         {NumWorkers: 2, Sleep: 0},
		"TorrentDeleter":           {NumWorkers: 1, Sleep: 0},
	}
}

// Load reads configuration from a key=value file and layers environment
// variables over it; environment variables take precedence.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		DBHost: "localhost",
		DBPort: 5432,
		DBName: "torrentship",

		DispatcherInterval: 5 * time.Second,
		TokenPath:           "/auth/api-token-auth/",
		TokenTTL:            55 * time.Minute,
		RequestTimeout:      30 * time.Second,

		CompletedTorrentsPath: "/completed-torrents/",
		PackagedTorrentsPath:  "/torrents/",
		PackagePath:           "/torrents/",
		ListPath:              "/torrents/",
		DownloadPathPrefix:    "/download/",

		ScanPath:           "/var/lib/torrentship/completed",
		OutputPath:         "/var/lib/torrentship/packages",
		MinPackageFileSize: 10 * 1024 * 1024,
		MaxPackageFiles:    1000,
		APIPort:            8080,

		Workers: defaultWorkers(),
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg.loadFromEnv()

	if cfg.DBUser == "" {
		return nil, fmt.Errorf("DB_USER must be set (in config file or environment)")
	}
	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD must be set (in config file or environment)")
	}

	return cfg, nil
}

// loadFromFile reads key=value pairs. Worker-class sections use
// "<ClassName>.num_workers" / "<ClassName>.sleep" keys; the path manager
// uses "PathManager.<field>" keys holding a "path,owner,group,dmode,fmode"
// value.
func (cfg *Config) loadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if worker, field, ok := strings.Cut(key, "."); ok && worker == "PathManager" {
			if err := cfg.setPathField(field, value); err != nil {
				return err
			}
			continue
		}
		if worker, field, ok := strings.Cut(key, "."); ok && (field == "num_workers" || field == "sleep") {
			cfg.setWorkerField(worker, field, value)
			continue
		}

		switch key {
		case "db_host":
			cfg.DBHost = value
		case "db_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.DBPort = v
			}
		case "db_name":
			cfg.DBName = value
		case "db_user":
			cfg.DBUser = value
		case "db_password":
			cfg.DBPassword = value
		case "dispatcher_interval":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.DispatcherInterval = d
			}
		case "producer_base_url":
			cfg.ProducerBaseURL = value
		case "producer_username":
			cfg.ProducerUsername = value
		case "producer_password":
			cfg.ProducerPassword = value
		case "token_path":
			cfg.TokenPath = value
		case "token_ttl":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.TokenTTL = d
			}
		case "request_timeout":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.RequestTimeout = d
			}
		case "completed_torrents_path":
			cfg.CompletedTorrentsPath = value
		case "packaged_torrents_path":
			cfg.PackagedTorrentsPath = value
		case "package_path":
			cfg.PackagePath = value
		case "list_path":
			cfg.ListPath = value
		case "download_path_prefix":
			cfg.DownloadPathPrefix = value
		case "scan_path":
			cfg.ScanPath = value
		case "output_path":
			cfg.OutputPath = value
		case "min_package_file_size":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				cfg.MinPackageFileSize = v
			}
		case "max_package_files":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.MaxPackageFiles = v
			}
		case "api_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.APIPort = v
			}
		}
	}
	return scanner.Err()
}

func (cfg *Config) setWorkerField(worker, field, value string) {
	wc := cfg.Workers[worker]
	switch field {
	case "num_workers":
		if v, err := strconv.Atoi(value); err == nil {
			wc.NumWorkers = v
		}
	case "sleep":
		if d, err := time.ParseDuration(value); err == nil {
			wc.Sleep = d
		}
	}
	cfg.Workers[worker] = wc
}

// setPathField validates value as a "path,owner,group,dmode,fmode" line via
// pathmgr.ParseDirConfig and, if valid, stores the raw line for later
// parsing at wiring time.
func (cfg *Config) setPathField(field, value string) error {
	if _, err := pathmgr.ParseDirConfig(value); err != nil {
		return err
	}
	switch field {
	case "package_files_dir":
		cfg.Paths.PackageFilesDir = value
	case "failed_package_files_dir":
		cfg.Paths.FailedPackageFilesDir = value
	case "unsorted_package_dir":
		cfg.Paths.UnsortedPackageDir = value
	case "unknown_package_dir":
		cfg.Paths.UnknownPackageDir = value
	case "master_dir":
		cfg.Paths.MasterDir = value
	case "new_dir":
		cfg.Paths.NewDir = value
	default:
		return fmt.Errorf("config: unknown PathManager field %q", field)
	}
	return nil
}

// loadFromEnv overrides secrets and connection settings from the
// environment; it never overrides per-worker sizing or path lines, which
// only make sense expressed together in the config file.
func (cfg *Config) loadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DBHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DBPort = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("PRODUCER_BASE_URL"); v != "" {
		cfg.ProducerBaseURL = v
	}
	if v := os.Getenv("PRODUCER_USERNAME"); v != "" {
		cfg.ProducerUsername = v
	}
	if v := os.Getenv("PRODUCER_PASSWORD"); v != "" {
		cfg.ProducerPassword = v
	}
	if v := os.Getenv("SCAN_PATH"); v != "" {
		cfg.ScanPath = v
	}
	if v := os.Getenv("OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = port
		}
	}
}

// ConnectionString returns a PostgreSQL connection string.
func (cfg *Config) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)
}
