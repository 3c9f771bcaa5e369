package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks every configuration problem. All of them are fatal at
// startup, before any asset goroutine is created.
var ErrInvalid = errors.New("invalid configuration")

// Collection modes
const (
	ModeOnce     = "once"
	ModePeriodic = "periodic"
)

// Database drivers
const (
	DriverInfluxDB = "influxdb"
	DriverSQLite   = "sqlite"
)

// Sensor kinds
const (
	KindHumidity    = "humidity"
	KindTemperature = "temperature"
	KindMoisture    = "moisture"
	KindLightLevel  = "light_level"
	KindNDVI        = "ndvi"
)

// Asset kinds
const (
	AssetShelf      = "shelf"
	AssetPot        = "pot"
	AssetGreenhouse = "greenhouse"
	AssetPlant      = "plant"
)

// DHT models
const (
	ModelDHT11 = "DHT11"
	ModelDHT22 = "DHT22"
)

// ADC channel range of the MCP3008
const (
	MinADCChannel = 0
	MaxADCChannel = 7
)

// DefaultLightAddress is the BH1750 address with the ADDR pin pulled low.
const DefaultLightAddress = 0x23

// DefaultCleanupPeriod is how often the local store is pruned.
const DefaultCleanupPeriod = time.Hour

// ErrorPolicy decides what an asset does when one of its sensors fails.
type ErrorPolicy string

const (
	PolicySkipAndLog ErrorPolicy = "skip_and_log"
	PolicyAbort      ErrorPolicy = "abort"
)

// Valid reports whether p is a known policy
func (p ErrorPolicy) Valid() bool {
	return p == PolicySkipAndLog || p == PolicyAbort
}

// Config holds all configuration for the collector
type Config struct {
	Collection CollectionConfig `yaml:"collection"`
	Database   DatabaseConfig   `yaml:"database"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Sensors    []SensorConfig   `yaml:"sensors"`
	Assets     []AssetConfig    `yaml:"assets"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CollectionConfig controls how often assets are read
type CollectionConfig struct {
	Mode          string        `yaml:"mode"`
	Interval      time.Duration `yaml:"interval"`
	OnSensorError ErrorPolicy   `yaml:"on_sensor_error"`
}

// DatabaseConfig selects and configures the write backend
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Retry    RetryConfig    `yaml:"retry"`
}

// InfluxDBConfig contains InfluxDB v2 connection settings
type InfluxDBConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Org     string        `yaml:"org"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// SQLiteConfig contains settings for the local SQLite store
type SQLiteConfig struct {
	Path          string        `yaml:"path"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// RetryConfig bounds the backoff applied to failed database writes
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// HardwareConfig names the buses analog and I2C sensors are attached to.
// Empty names select the first bus the host registers.
type HardwareConfig struct {
	SPIPort string `yaml:"spi_port"`
	I2CBus  string `yaml:"i2c_bus"`
}

// SensorConfig maps a logical sensor name to its physical address.
//
// Address formats by kind:
//
//	humidity, temperature  GPIO pin name of the DHT data line ("D4", "GPIO4", "4")
//	moisture               MCP3008 channel ("0".."7")
//	light_level            BH1750 I2C address ("0x23"), empty for the default
//	ndvi                   near-infrared and red MCP3008 channels ("4,5")
type SensorConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
	Model   string `yaml:"model"`
	Field   string `yaml:"field"`
	Dry     int    `yaml:"dry"`
	Wet     int    `yaml:"wet"`
}

// AssetConfig describes one physical location and the sensors it owns
type AssetConfig struct {
	Kind          string      `yaml:"kind"`
	ID            string      `yaml:"id"`
	ShelfSide     string      `yaml:"shelf_side"`
	PotSide       string      `yaml:"pot_side"`
	PlantID       string      `yaml:"plant_id"`
	Sensors       []string    `yaml:"sensors"`
	OnSensorError ErrorPolicy `yaml:"on_sensor_error"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// envOverrides lists the environment variables that take precedence over
// the YAML file.
type envOverrides struct {
	Mode          string        `env:"COLLECTOR_MODE"`
	Interval      time.Duration `env:"COLLECTOR_INTERVAL"`
	OnSensorError string        `env:"COLLECTOR_ON_SENSOR_ERROR"`
	Driver        string        `env:"COLLECTOR_DB_DRIVER"`
	SQLitePath    string        `env:"COLLECTOR_SQLITE_PATH"`
	InfluxURL     string        `env:"INFLUX_URL"`
	InfluxToken   string        `env:"INFLUX_TOKEN"`
	InfluxOrg     string        `env:"INFLUX_ORG"`
	InfluxBucket  string        `env:"INFLUX_BUCKET"`
	LogLevel      string        `env:"LOG_LEVEL"`
}

// LoadEnvFile loads KEY=value pairs from the given files (".env" when none
// are given) into the process environment. Missing files are not an error.
func LoadEnvFile(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalid, path, err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
	}

	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Collection.Mode == "" {
		c.Collection.Mode = ModeOnce
	}
	if c.Collection.Interval == 0 {
		c.Collection.Interval = 60 * time.Second
	}
	if c.Collection.OnSensorError == "" {
		c.Collection.OnSensorError = PolicySkipAndLog
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverInfluxDB
	}
	if c.Database.InfluxDB.URL == "" {
		c.Database.InfluxDB.URL = "http://localhost:8086"
	}
	if c.Database.InfluxDB.Timeout == 0 {
		c.Database.InfluxDB.Timeout = 10 * time.Second
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "data/collector.db"
	}
	if c.Database.SQLite.RetentionDays == 0 {
		c.Database.SQLite.RetentionDays = 30
	}
	if c.Database.SQLite.CleanupPeriod == 0 {
		c.Database.SQLite.CleanupPeriod = DefaultCleanupPeriod
	}
	if c.Database.Retry.MaxAttempts == 0 {
		c.Database.Retry.MaxAttempts = 5
	}
	if c.Database.Retry.InitialInterval == 0 {
		c.Database.Retry.InitialInterval = 500 * time.Millisecond
	}
	if c.Database.Retry.MaxInterval == 0 {
		c.Database.Retry.MaxInterval = 30 * time.Second
	}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if (s.Kind == KindHumidity || s.Kind == KindTemperature) && s.Model == "" {
			s.Model = ModelDHT22
		}
		if s.Kind == KindMoisture && s.Dry == 0 && s.Wet == 0 {
			s.Dry = 1023
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables.
// Only variables that are set (non-empty) take effect.
func (c *Config) OverrideFromEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("%w: environment: %w", ErrInvalid, err)
	}

	setString(&c.Collection.Mode, o.Mode)
	if o.Interval != 0 {
		c.Collection.Interval = o.Interval
	}
	if o.OnSensorError != "" {
		c.Collection.OnSensorError = ErrorPolicy(o.OnSensorError)
	}
	setString(&c.Database.Driver, o.Driver)
	setString(&c.Database.SQLite.Path, o.SQLitePath)
	setString(&c.Database.InfluxDB.URL, o.InfluxURL)
	setString(&c.Database.InfluxDB.Token, o.InfluxToken)
	setString(&c.Database.InfluxDB.Org, o.InfluxOrg)
	setString(&c.Database.InfluxDB.Bucket, o.InfluxBucket)
	setString(&c.Logging.Level, o.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Collection.Mode {
	case ModeOnce:
	case ModePeriodic:
		if c.Collection.Interval < time.Second {
			return invalidf("collection interval must be at least 1 second")
		}
	default:
		return invalidf("unknown collection mode %q", c.Collection.Mode)
	}
	if !c.Collection.OnSensorError.Valid() {
		return invalidf("unknown on_sensor_error policy %q", c.Collection.OnSensorError)
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	sensors := make(map[string]SensorConfig, len(c.Sensors))
	for _, s := range c.Sensors {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := sensors[s.Name]; dup {
			return invalidf("duplicate sensor name %q", s.Name)
		}
		sensors[s.Name] = s
	}

	if len(c.Assets) == 0 {
		return invalidf("at least one asset is required")
	}
	// kind and id name a location; a greenhouse without an id is still one
	locations := make(map[[2]string]int, len(c.Assets))
	for i, a := range c.Assets {
		if err := a.validate(sensors); err != nil {
			return fmt.Errorf("asset %d: %w", i, err)
		}
		key := [2]string{a.Kind, a.ID}
		if prev, dup := locations[key]; dup {
			return invalidf("assets %d and %d are both %s %q", prev, i, a.Kind, a.ID)
		}
		locations[key] = i
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return invalidf("logging level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return invalidf("logging format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverInfluxDB:
		if d.InfluxDB.URL == "" {
			return invalidf("influxdb url is required")
		}
		if !strings.HasPrefix(d.InfluxDB.URL, "http://") && !strings.HasPrefix(d.InfluxDB.URL, "https://") {
			return invalidf("influxdb url must start with http:// or https://")
		}
		if d.InfluxDB.Token == "" {
			return invalidf("influxdb token is required")
		}
		if d.InfluxDB.Org == "" {
			return invalidf("influxdb org is required")
		}
		if d.InfluxDB.Bucket == "" {
			return invalidf("influxdb bucket is required")
		}
	case DriverSQLite:
		if d.SQLite.Path == "" {
			return invalidf("sqlite path is required")
		}
		if d.SQLite.RetentionDays < 0 {
			return invalidf("sqlite retention_days must not be negative")
		}
	default:
		return invalidf("unknown database driver %q", d.Driver)
	}
	if d.Retry.MaxAttempts < 1 || d.Retry.MaxAttempts > 100 {
		return invalidf("retry max_attempts must be between 1 and 100")
	}
	if d.Retry.InitialInterval <= 0 || d.Retry.MaxInterval < d.Retry.InitialInterval {
		return invalidf("retry intervals must be positive and max_interval >= initial_interval")
	}
	return nil
}

// Validate checks a single sensor entry, including its address format
func (s SensorConfig) Validate() error {
	if s.Name == "" {
		return invalidf("sensor name is required")
	}
	switch s.Kind {
	case KindHumidity, KindTemperature:
		if s.Address == "" {
			return invalidf("sensor %q: gpio pin address is required", s.Name)
		}
		if s.Model != ModelDHT11 && s.Model != ModelDHT22 {
			return invalidf("sensor %q: unknown model %q", s.Name, s.Model)
		}
	case KindMoisture:
		if _, err := s.ADCChannel(); err != nil {
			return err
		}
		if s.Dry == s.Wet {
			return invalidf("sensor %q: dry and wet calibration must differ", s.Name)
		}
	case KindLightLevel:
		if _, err := s.I2CAddress(); err != nil {
			return err
		}
	case KindNDVI:
		if _, _, err := s.NDVIChannels(); err != nil {
			return err
		}
	default:
		return invalidf("sensor %q: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// FieldName is the record field the sensor's value is stored under
func (s SensorConfig) FieldName() string {
	if s.Field != "" {
		return s.Field
	}
	return s.Kind
}

// ADCChannel parses the address as an MCP3008 channel
func (s SensorConfig) ADCChannel() (int, error) {
	return parseChannel(s.Name, s.Address)
}

// NDVIChannels parses the address as "nir,red" MCP3008 channels
func (s SensorConfig) NDVIChannels() (nir, red int, err error) {
	parts := strings.Split(s.Address, ",")
	if len(parts) != 2 {
		return 0, 0, invalidf("sensor %q: ndvi address must be \"nir,red\", got %q", s.Name, s.Address)
	}
	if nir, err = parseChannel(s.Name, parts[0]); err != nil {
		return 0, 0, err
	}
	if red, err = parseChannel(s.Name, parts[1]); err != nil {
		return 0, 0, err
	}
	if nir == red {
		return 0, 0, invalidf("sensor %q: ndvi channels must differ", s.Name)
	}
	return nir, red, nil
}

// I2CAddress parses the address as a 7-bit I2C address
func (s SensorConfig) I2CAddress() (uint16, error) {
	if strings.TrimSpace(s.Address) == "" {
		return DefaultLightAddress, nil
	}
	addr, err := strconv.ParseUint(strings.TrimSpace(s.Address), 0, 16)
	if err != nil {
		return 0, invalidf("sensor %q: bad i2c address %q", s.Name, s.Address)
	}
	if addr < 0x03 || addr > 0x77 {
		return 0, invalidf("sensor %q: i2c address %#x out of range", s.Name, addr)
	}
	return uint16(addr), nil
}

func parseChannel(name, raw string) (int, error) {
	ch, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalidf("sensor %q: bad adc channel %q", name, raw)
	}
	if ch < MinADCChannel || ch > MaxADCChannel {
		return 0, invalidf("sensor %q: adc channel %d out of range %d-%d", name, ch, MinADCChannel, MaxADCChannel)
	}
	return ch, nil
}

// Policy returns the asset's error policy, falling back to def
func (a AssetConfig) Policy(def ErrorPolicy) ErrorPolicy {
	if a.OnSensorError != "" {
		return a.OnSensorError
	}
	return def
}

func (a AssetConfig) validate(sensors map[string]SensorConfig) error {
	switch a.Kind {
	case AssetShelf:
		if a.ID == "" {
			return invalidf("shelf id is required")
		}
	case AssetPot:
		if a.ID == "" {
			return invalidf("pot id is required")
		}
		if a.ShelfSide == "" || a.PotSide == "" {
			return invalidf("pot %s: shelf_side and pot_side are required", a.ID)
		}
	case AssetGreenhouse:
	case AssetPlant:
		if a.ID == "" {
			return invalidf("plant id is required")
		}
	default:
		return invalidf("unknown asset kind %q", a.Kind)
	}
	if a.OnSensorError != "" && !a.OnSensorError.Valid() {
		return invalidf("%s: unknown on_sensor_error policy %q", a.Kind, a.OnSensorError)
	}

	fields := make(map[string]string, len(a.Sensors))
	for _, name := range a.Sensors {
		s, ok := sensors[name]
		if !ok {
			return invalidf("%s: unknown sensor %q", a.Kind, name)
		}
		if prev, dup := fields[s.FieldName()]; dup {
			return invalidf("%s: sensors %q and %q both write field %q", a.Kind, prev, name, s.FieldName())
		}
		fields[s.FieldName()] = name
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// String returns a safe string representation (hides the InfluxDB token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Collection: %+v, Database: [Driver=%s, URL=%s, Token=%s, Org=%s, Bucket=%s, SQLite=%s], Sensors: %d, Assets: %d, Logging: %+v}",
		c.Collection,
		c.Database.Driver,
		c.Database.InfluxDB.URL,
		maskToken(c.Database.InfluxDB.Token),
		c.Database.InfluxDB.Org,
		c.Database.InfluxDB.Bucket,
		c.Database.SQLite.Path,
		len(c.Sensors),
		len(c.Assets),
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
