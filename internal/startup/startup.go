package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/workers"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// EnvPrefix is prepended to every configuration key when read from the
// environment, e.g. LORAIRO_PAGE_SIZE.
const EnvPrefix = "LORAIRO"

// Config holds all application configuration
type Config struct {
	ProjectDir          string        `mapstructure:"project_dir"`
	TagDBPath           string        `mapstructure:"tag_db_path"`
	Port                string        `mapstructure:"port"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	LogLevel            string        `mapstructure:"log_level"`
	LogHealthChecks     bool          `mapstructure:"log_health_checks"`
	PageSize            int           `mapstructure:"page_size"`
	PageCacheMaxPages   int           `mapstructure:"page_cache_max_pages"`
	ThumbnailSize       int           `mapstructure:"thumbnail_size"`
	ProcessedResolution int           `mapstructure:"processed_resolution"`
	ResultCacheTTL      time.Duration `mapstructure:"result_cache_ttl"`
	ThumbnailWorkers    int           `mapstructure:"thumbnail_workers"`
	StatsInterval       time.Duration `mapstructure:"stats_interval"`

	// Derived paths
	DatabasePath string `mapstructure:"-"`
	DatasetDir   string `mapstructure:"-"`

	// ConfigFile is the file that was read, empty when running on defaults.
	ConfigFile string `mapstructure:"-"`
}

// setDefaults registers every key so that environment overrides are picked up
// by Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project_dir", filepath.Join("lorairo_data", "main_dataset"))
	v.SetDefault("tag_db_path", filepath.Join("lorairo_data", "tags.db"))
	v.SetDefault("port", "8080")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("log_level", "")
	v.SetDefault("log_health_checks", false)
	v.SetDefault("page_size", 100)
	v.SetDefault("page_cache_max_pages", 5)
	v.SetDefault("thumbnail_size", 256)
	v.SetDefault("processed_resolution", 512)
	v.SetDefault("result_cache_ttl", 30*time.Second)
	v.SetDefault("thumbnail_workers", 0)
	v.SetDefault("stats_interval", time.Minute)
}

// defaultConfigPaths lists the directories searched for lorairo.yaml.
func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lorairo"))
	}
	return paths
}

// newViper builds a viper instance with defaults, env binding and, when
// configFile is empty, the default search paths.
func newViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}

	v.SetConfigName("lorairo")
	v.SetConfigType("yaml")
	for _, path := range defaultConfigPaths() {
		v.AddConfigPath(path)
	}
	return v
}

// LoadConfig loads configuration from the default search paths.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile loads and validates configuration. An empty configFile
// searches for lorairo.yaml; a missing file is not an error, an explicit
// configFile that cannot be read is.
func LoadConfigFile(configFile string) (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := readConfig(configFile)
	if err != nil {
		return nil, err
	}

	logConfig(config)

	if err := prepareDirectories(config); err != nil {
		return nil, err
	}

	return config, nil
}

// readConfig reads, unmarshals and validates without touching the filesystem
// beyond the config file itself.
func readConfig(configFile string) (*Config, error) {
	v := newViper(configFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logging.Debug("  No lorairo.yaml found, using defaults and environment")
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	if config.LogLevel != "" && !logging.SetLevel(config.LogLevel) {
		logging.Warn("  Invalid log_level %q, keeping %s", config.LogLevel, logging.GetLevel())
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	projectDir, err := filepath.Abs(config.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory path: %w", err)
	}
	config.ProjectDir = projectDir

	tagDBPath, err := filepath.Abs(config.TagDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tag database path: %w", err)
	}
	config.TagDBPath = tagDBPath

	config.DatabasePath = filepath.Join(projectDir, "image_database.db")
	config.DatasetDir = filepath.Join(projectDir, "image_dataset")

	workers.SetOverride(config.ThumbnailWorkers)

	return config, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.ProjectDir == "":
		return errors.New("project_dir must not be empty")
	case c.TagDBPath == "":
		return errors.New("tag_db_path must not be empty")
	case c.Port == "":
		return errors.New("port must not be empty")
	case c.PageSize <= 0:
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	case c.PageCacheMaxPages <= 0:
		return fmt.Errorf("page_cache_max_pages must be positive, got %d", c.PageCacheMaxPages)
	case c.ThumbnailSize <= 0:
		return fmt.Errorf("thumbnail_size must be positive, got %d", c.ThumbnailSize)
	case c.ProcessedResolution <= 0:
		return fmt.Errorf("processed_resolution must be positive, got %d", c.ProcessedResolution)
	case c.ResultCacheTTL < 0:
		return fmt.Errorf("result_cache_ttl must not be negative, got %s", c.ResultCacheTTL)
	case c.ThumbnailWorkers < 0:
		return fmt.Errorf("thumbnail_workers must not be negative, got %d", c.ThumbnailWorkers)
	case c.StatsInterval <= 0:
		return fmt.Errorf("stats_interval must be positive, got %s", c.StatsInterval)
	}
	return nil
}

func logConfig(config *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if config.ConfigFile != "" {
		logging.Info("  Config file:           %s", config.ConfigFile)
	} else {
		logging.Info("  Config file:           (none)")
	}
	logging.Info("  PROJECT_DIR:           %s", config.ProjectDir)
	logging.Info("  TAG_DB_PATH:           %s", config.TagDBPath)
	logging.Info("  PORT:                  %s", config.Port)
	logging.Info("  METRICS_ENABLED:       %v", config.MetricsEnabled)
	logging.Info("  PAGE_SIZE:             %d", config.PageSize)
	logging.Info("  PAGE_CACHE_MAX_PAGES:  %d", config.PageCacheMaxPages)
	logging.Info("  THUMBNAIL_SIZE:        %d", config.ThumbnailSize)
	logging.Info("  PROCESSED_RESOLUTION:  %d", config.ProcessedResolution)
	logging.Info("  RESULT_CACHE_TTL:      %s", config.ResultCacheTTL)
	if config.ThumbnailWorkers > 0 {
		logging.Info("  THUMBNAIL_WORKERS:     %d", config.ThumbnailWorkers)
	} else {
		logging.Info("  THUMBNAIL_WORKERS:     auto (%d)", workers.ForCPU(0))
	}
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())
}

func prepareDirectories(config *Config) error {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(config.ProjectDir, "project"); err != nil {
		return fmt.Errorf("project directory error: %w", err)
	}

	logging.Debug("  Testing project directory write access...")
	if err := testWriteAccess(config.ProjectDir); err != nil {
		return fmt.Errorf("project directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Project directory is writable")

	if err := ensureDirectory(filepath.Dir(config.TagDBPath), "tag database"); err != nil {
		return fmt.Errorf("tag database directory error: %w", err)
	}
	logging.Info("  [OK] Tag database directory ready")

	return nil
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Project and tag databases opened in %v", duration)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LORAIRO_LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://localhost:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	logging.Info("------------------------------------------------------------")
	logging.Info("  LoRAIro dataset server")
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("------------------------------------------------------------")
}

func logSystemInfo() {
	logging.Info("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
