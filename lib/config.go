package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/units"
)

/* This file implements logic for 'user controlled' global configurations of each module of the node */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath  = "config.json"       // the file path for the node configuration
	GenesisFilePath = "genesis.json"      // the file path for the genesis (initial pool set)
	KeyFilePath     = "operator_key.json" // the file path for the plaintext operator key
)

// Config is the structure of the user configuration options for a millpond node
type Config struct {
	MainConfig    // main options spanning over all modules
	RPCConfig     // rpc API options
	EngineConfig  // envelope queue and tick clock options
	StoreConfig   // persistence options
	MetricsConfig // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:    DefaultMainConfig(),
		RPCConfig:     DefaultRPCConfig(),
		EngineConfig:  DefaultEngineConfig(),
		StoreConfig:   DefaultStoreConfig(),
		MetricsConfig: DefaultMetricsConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel string `json:"logLevel"` // any level includes the levels above it: debug < info < warning < error
	Headless bool   `json:"headless"` // turn off the pool explorer 'web' front end
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel: "info", // everything but debug is the default
		Headless: false,  // serve the pool explorer by default
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel Enum
func (m *MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "inf"):
		return InfoLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// RPC CONFIG BELOW

type RPCConfig struct {
	ExplorerPort string `json:"explorerPort"` // the port where the pool explorer is hosted
	RPCPort      string `json:"rpcPort"`      // the port where the rpc server is hosted
	AdminPort    string `json:"adminPort"`    // the port where the admin rpc server is hosted
	RPCUrl       string `json:"rpcURL"`       // the url where the rpc server is hosted
	AdminRPCUrl  string `json:"adminRPCUrl"`  // the url where the admin rpc server is hosted
	TimeoutS     int    `json:"timeoutS"`     // the rpc request timeout in seconds
}

// DefaultRPCConfig() sets rpc url to localhost and sets explorer, rpc, and admin ports from [42000-42002]
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		ExplorerPort: "42000",                  // find the explorer on localhost:42000
		RPCPort:      "42001",                  // the rpc is served on localhost:42001
		AdminPort:    "42002",                  // the admin rpc is served on localhost:42002
		RPCUrl:       "http://localhost:42001", // use a local rpc by default
		AdminRPCUrl:  "http://localhost:42002", // use a local admin rpc by default
		TimeoutS:     3,                        // the rpc timeout is 3 seconds
	}
}

// ENGINE CONFIG BELOW

// EngineConfig is the user configuration of the envelope queue and the tick clock
type EngineConfig struct {
	TickIntervalMS      uint64 `json:"tickIntervalMS"`      // how often the engine advances the tick clock in milliseconds
	MaxQueuedEnvelopes  uint32 `json:"maxQueuedEnvelopes"`  // max number of envelopes waiting to be applied
	MaxTotalBytes       uint64 `json:"maxTotalBytes"`       // maximum collective bytes in the queue
	IndividualMaxSize   uint32 `json:"individualMaxSize"`   // max bytes of a single envelope
	DropPercentage      int    `json:"dropPercentage"`      // percentage dropped from the bottom of the queue if limits are reached
	CommitEveryEnvelope bool   `json:"commitEveryEnvelope"` // persist after each envelope instead of each tick, only for testing
}

// DefaultEngineConfig() returns the developer created engine options
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickIntervalMS:     1000,                       // advance the tick clock every second
		MaxQueuedEnvelopes: 5000,                       // 5000 max envelopes
		MaxTotalBytes:      uint64(10 * units.MB),      // 10 MB max size
		IndividualMaxSize:  uint32(4 * units.Kilobyte), // 4 KB max individual envelope size
		DropPercentage:     35,                         // drop 35% if limits are reached
	}
}

// STORE CONFIG BELOW

// StoreConfig is user configurations for the key value database
type StoreConfig struct {
	DataDirPath string `json:"dataDirPath"` // path of the designated folder where the application stores its data
	DBName      string `json:"dbName"`      // name of the database
	InMemory    bool   `json:"inMemory"`    // non-disk database, only for testing
}

// DefaultDataDirPath() is $USERHOME/.millpond
func DefaultDataDirPath() string {
	// get the user home
	home, err := os.UserHomeDir()
	// if unable to get the user home
	if err != nil {
		// fatal error
		panic(err)
	}
	// exit with full default data directory path
	return filepath.Join(home, ".millpond")
}

// DefaultStoreConfig() returns the developer recommended store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DataDirPath: DefaultDataDirPath(), // use the default data dir path
		DBName:      "millpond",           // 'millpond' database name
		InMemory:    false,                // persist to disk, not memory
	}
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	Enabled           bool   `json:"enabled"`           // if the metrics are enabled
	PrometheusAddress string `json:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:           true,           // enabled by default
		PrometheusAddress: "0.0.0.0:9090", // the default prometheus address
	}
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filepath string) error {
	// convert the config to indented 'pretty' json bytes
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	// if an error occurred during the conversion
	if err != nil {
		// exit with error
		return err
	}
	// write the config.json file to the data directory
	return os.WriteFile(filepath, jsonBytes, os.ModePerm)
}

// NewConfigFromFile() populates a Config object from a JSON file
func NewConfigFromFile(filepath string) (Config, error) {
	// read the file into bytes using
	fileBytes, err := os.ReadFile(filepath)
	// if an error occurred
	if err != nil {
		// exit with error
		return Config{}, err
	}
	// define the default config to fill in any blanks in the file
	c := DefaultConfig()
	// populate the default config with the file bytes
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		// exit with error
		return Config{}, err
	}
	// exit
	return c, nil
}
