package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "dartviz.cfg.json"

// OverlayConfig holds marker drawing and timing settings.
type OverlayConfig struct {
	MaxMarkersPerEntity int           `json:"maxMarkersPerEntity" mapstructure:"maxMarkersPerEntity"`
	MarkerRadius        float64       `json:"markerRadius" mapstructure:"markerRadius"`
	StrokeWidth         float64       `json:"strokeWidth" mapstructure:"strokeWidth"`
	LabelSize           float64       `json:"labelSize" mapstructure:"labelSize"`
	Palette             []string      `json:"palette" mapstructure:"palette"`
	ResizeDebounce      time.Duration `json:"resizeDebounce" mapstructure:"resizeDebounce"`
	AnimationDelay      time.Duration `json:"animationDelay" mapstructure:"animationDelay"`
	UndoDelay           time.Duration `json:"undoDelay" mapstructure:"undoDelay"`
	FrameInterval       time.Duration `json:"frameInterval" mapstructure:"frameInterval"`
	QueueSize           int           `json:"queueSize" mapstructure:"queueSize"`
	MaxCanvasSide       int           `json:"maxCanvasSide" mapstructure:"maxCanvasSide"`
}

// ReferenceConfig describes the reference image box at startup.
type ReferenceConfig struct {
	Enabled bool    `json:"enabled" mapstructure:"enabled"`
	Left    float64 `json:"left" mapstructure:"left"`
	Top     float64 `json:"top" mapstructure:"top"`
	Width   float64 `json:"width" mapstructure:"width"`
	Height  float64 `json:"height" mapstructure:"height"`
}

// SQLiteConfig holds a sqlite database path.
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// WebSocketConfig holds the inbound feed endpoint.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// SourceConfig selects where game events come from.
type SourceConfig struct {
	Type         string          `json:"type" mapstructure:"type"`
	PollInterval time.Duration   `json:"pollInterval" mapstructure:"pollInterval"`
	SQLite       SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket    WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	DB           DBConfig        `json:"-" mapstructure:"-"`
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// JournalConfig controls the visualized-marker journal.
type JournalConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	Type          string        `json:"type" mapstructure:"type"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
	DB            DBConfig      `json:"-" mapstructure:"-"`
	Influx        InfluxConfig  `json:"-" mapstructure:"-"`
}

// GraylogConfig holds the GELF endpoint.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("overlay.maxMarkersPerEntity", 3)
	viper.SetDefault("overlay.markerRadius", 5.0)
	viper.SetDefault("overlay.strokeWidth", 1.5)
	viper.SetDefault("overlay.labelSize", 10.0)
	viper.SetDefault("overlay.palette", []string{})
	viper.SetDefault("overlay.resizeDebounce", "100ms")
	viper.SetDefault("overlay.animationDelay", "3500ms")
	viper.SetDefault("overlay.undoDelay", "500ms")
	viper.SetDefault("overlay.frameInterval", "16ms")
	viper.SetDefault("overlay.queueSize", 1024)
	viper.SetDefault("overlay.maxCanvasSide", 8192)

	viper.SetDefault("reference.enabled", true)
	viper.SetDefault("reference.left", 0.0)
	viper.SetDefault("reference.top", 0.0)
	viper.SetDefault("reference.width", 450.0)
	viper.SetDefault("reference.height", 450.0)

	viper.SetDefault("source.type", "sqlite")
	viper.SetDefault("source.pollInterval", "500ms")
	viper.SetDefault("source.sqlite.path", "./game.db")
	viper.SetDefault("source.websocket.url", "")
	viper.SetDefault("source.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "darts")

	viper.SetDefault("journal.enabled", false)
	viper.SetDefault("journal.type", "sqlite")
	viper.SetDefault("journal.sqlite.path", "./journal.db")
	viper.SetDefault("journal.flushInterval", "2s")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "darts")
	viper.SetDefault("influx.bucket", "throws")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "dartviz")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "10s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("http.address", ":8090")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetOverlayConfig returns the overlay settings.
func GetOverlayConfig() OverlayConfig {
	return OverlayConfig{
		MaxMarkersPerEntity: viper.GetInt("overlay.maxMarkersPerEntity"),
		MarkerRadius:        viper.GetFloat64("overlay.markerRadius"),
		StrokeWidth:         viper.GetFloat64("overlay.strokeWidth"),
		LabelSize:           viper.GetFloat64("overlay.labelSize"),
		Palette:             viper.GetStringSlice("overlay.palette"),
		ResizeDebounce:      viper.GetDuration("overlay.resizeDebounce"),
		AnimationDelay:      viper.GetDuration("overlay.animationDelay"),
		UndoDelay:           viper.GetDuration("overlay.undoDelay"),
		FrameInterval:       viper.GetDuration("overlay.frameInterval"),
		QueueSize:           viper.GetInt("overlay.queueSize"),
		MaxCanvasSide:       viper.GetInt("overlay.maxCanvasSide"),
	}
}

// GetReferenceConfig returns the startup reference box.
func GetReferenceConfig() ReferenceConfig {
	return ReferenceConfig{
		Enabled: viper.GetBool("reference.enabled"),
		Left:    viper.GetFloat64("reference.left"),
		Top:     viper.GetFloat64("reference.top"),
		Width:   viper.GetFloat64("reference.width"),
		Height:  viper.GetFloat64("reference.height"),
	}
}

// GetDBConfig returns the postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB connection settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetSourceConfig returns the game event source settings.
func GetSourceConfig() SourceConfig {
	return SourceConfig{
		Type:         viper.GetString("source.type"),
		PollInterval: viper.GetDuration("source.pollInterval"),
		SQLite:       SQLiteConfig{Path: viper.GetString("source.sqlite.path")},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("source.websocket.url"),
			Secret: viper.GetString("source.websocket.secret"),
		},
		DB: GetDBConfig(),
	}
}

// GetJournalConfig returns the journal settings.
func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:       viper.GetBool("journal.enabled"),
		Type:          viper.GetString("journal.type"),
		FlushInterval: viper.GetDuration("journal.flushInterval"),
		SQLite:        SQLiteConfig{Path: viper.GetString("journal.sqlite.path")},
		DB:            GetDBConfig(),
		Influx:        GetInfluxConfig(),
	}
}

// GetGraylogConfig returns the Graylog settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetHTTPConfig returns the HTTP listener settings.
func GetHTTPConfig() HTTPConfig {
	return HTTPConfig{Address: viper.GetString("http.address")}
}
