package config

import (
	"fmt"
	"time"

	"github.com/OCAP2/vehicledyn/internal/drivetrain"
	"github.com/OCAP2/vehicledyn/internal/rigidbody"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the name of the config file looked up in the config directory.
const FileName = "vehiclesim.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds the connection settings of the postgres backend
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds settings for the live telemetry stream
type WebSocketConfig struct {
	URL         string `json:"url" mapstructure:"url"`
	Secret      string `json:"secret" mapstructure:"secret"`
	SampleEvery int    `json:"sampleEvery" mapstructure:"sampleEvery"` // stream every Nth tick per car
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL is the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// StorageConfig selects and configures the recording backend
type StorageConfig struct {
	Type        string          `json:"type" mapstructure:"type"`
	SampleLimit int             `json:"sampleLimit" mapstructure:"sampleLimit"` // pending samples kept by database backends
	Memory      MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite      SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres    PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	WebSocket   WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	Influx      InfluxConfig    `json:"influx" mapstructure:"influx"`
}

// OTelConfig holds the OpenTelemetry export settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"` // 0 keeps instruments as no-ops
}

// SimConfig holds race-wide simulation settings
type SimConfig struct {
	TickRate float64          `json:"tickRate" mapstructure:"tickRate"` // Hz
	Backend  core.BackendMode `json:"backend" mapstructure:"backend"`   // empty keeps each vehicle's mode
	Solver   rigidbody.SolverConfig
	LogEvery int `json:"logEvery" mapstructure:"logEvery"` // ticks between status logs, 0 disables
	Launch   drivetrain.LaunchAssist
	Status   time.Duration `json:"statusInterval" mapstructure:"statusInterval"`
}

// Dt is the fixed step length in seconds.
func (c SimConfig) Dt() float64 {
	if c.TickRate <= 0 {
		return 0
	}
	return 1 / c.TickRate
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("defaultTag", "Practice")
	viper.SetDefault("logsDir", "./simlogs")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vehiclesim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "vehiclesim")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sampleLimit", 100000)
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/session.db")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.sampleEvery", 2)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vehiclesim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metricInterval", "30s")

	viper.SetDefault("sim.tickRate", 60.0)
	viper.SetDefault("sim.backend", "")
	viper.SetDefault("sim.solver.velocityIterations", 8)
	viper.SetDefault("sim.solver.positionIterations", 3)
	viper.SetDefault("sim.logEvery", 600)
	viper.SetDefault("sim.statusInterval", "10s")
	viper.SetDefault("sim.launch.minThrottle", 0.0)
	viper.SetDefault("sim.launch.speed", 0.0)
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

// GetStorageConfig returns the storage backend settings. The postgres and
// influx sections are shared with the top-level db and influx keys.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:        viper.GetString("storage.type"),
		SampleLimit: viper.GetInt("storage.sampleLimit"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		WebSocket: WebSocketConfig{
			URL:         viper.GetString("storage.websocket.url"),
			Secret:      viper.GetString("storage.websocket.secret"),
			SampleEvery: viper.GetInt("storage.websocket.sampleEvery"),
		},
		Influx: GetInfluxConfig(),
	}
}

// GetInfluxConfig returns the InfluxDB connection settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetSimConfig returns the race-wide simulation settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate: viper.GetFloat64("sim.tickRate"),
		Backend:  core.BackendMode(viper.GetString("sim.backend")),
		Solver: rigidbody.SolverConfig{
			VelocityIterations: viper.GetInt("sim.solver.velocityIterations"),
			PositionIterations: viper.GetInt("sim.solver.positionIterations"),
		},
		LogEvery: viper.GetInt("sim.logEvery"),
		Launch: drivetrain.LaunchAssist{
			MinThrottle: viper.GetFloat64("sim.launch.minThrottle"),
			Speed:       viper.GetFloat64("sim.launch.speed"),
		},
		Status: viper.GetDuration("sim.statusInterval"),
	}
}
