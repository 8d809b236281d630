// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/backend/ldb"
	"github.com/lihao628/massa/backend/pebbledb"
	"github.com/lihao628/massa/common"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the error returned if a configuration is incomplete or
// names an unsupported option. The text contains further details.
const ErrInvalidConfig = common.ConstError("invalid configuration")

// BackendType names an engine implementation.
type BackendType string

const (
	LevelDbBackend BackendType = "leveldb"
	PebbleBackend  BackendType = "pebble"
	// MemoryBackend keeps all data in memory; used by tests and demos.
	MemoryBackend BackendType = "memory"
)

// Config defines the parameters of a state store.
type Config struct {
	// Path is the directory of the engine. Ignored by the memory backend.
	Path    string      `yaml:"path"`
	Backend BackendType `yaml:"backend"`
	// BackupDir is the directory receiving backups, defaults to the parent
	// directory of Path.
	BackupDir string `yaml:"backup_dir"`
	// ThreadCount is the number of threads per period; it bounds the thread
	// of every persisted slot.
	ThreadCount uint8 `yaml:"thread_count"`
	// MaxHistoryLength is the number of change IDs retained in the change
	// log of each streamed space.
	MaxHistoryLength int `yaml:"max_history_length"`
	// MaxNewElements is the maximum number of new elements in a stream batch.
	MaxNewElements int `yaml:"max_new_elements"`

	// Registerer receives the store's metrics if set.
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig returns a configuration for a LevelDB based store in the
// given directory.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		Backend:          LevelDbBackend,
		ThreadCount:      32,
		MaxHistoryLength: 100,
		MaxNewElements:   500,
	}
}

// LoadConfig reads a YAML configuration file. Fields missing in the file
// retain their default values.
func LoadConfig(file string) (Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Config{}, err
	}
	config := DefaultConfig("")
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, file, err)
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	if _, found := engineFactoryRegistry[c.Backend]; !found {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Backend != MemoryBackend && c.Path == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidConfig)
	}
	return c.validateLimits()
}

func (c *Config) validateLimits() error {
	if c.ThreadCount == 0 {
		return fmt.Errorf("%w: thread count must be positive", ErrInvalidConfig)
	}
	if c.MaxHistoryLength <= 0 {
		return fmt.Errorf("%w: max history length must be positive", ErrInvalidConfig)
	}
	if c.MaxNewElements <= 0 {
		return fmt.Errorf("%w: max new elements must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) backupDir() (string, error) {
	if c.BackupDir != "" {
		return c.BackupDir, nil
	}
	if c.Path == "" {
		return "", fmt.Errorf("%w: no backup directory for a store without path", ErrInvalidConfig)
	}
	return filepath.Dir(filepath.Clean(c.Path)), nil
}

type EngineFactory func(config Config) (backend.Engine, error)

var engineFactoryRegistry = map[BackendType]EngineFactory{
	LevelDbBackend: func(config Config) (backend.Engine, error) {
		return ldb.Open(config.Path, nil)
	},
	PebbleBackend: func(config Config) (backend.Engine, error) {
		return pebbledb.Open(config.Path, pebbledb.Options{})
	},
	MemoryBackend: func(Config) (backend.Engine, error) {
		return ldb.OpenInMemory()
	},
}

func RegisterEngineFactory(backendType BackendType, factory EngineFactory) {
	if _, found := engineFactoryRegistry[backendType]; found {
		panic(fmt.Sprintf("attempted to register multiple factories for %v", backendType))
	}
	engineFactoryRegistry[backendType] = factory
}

func GetAllRegisteredEngineFactories() map[BackendType]EngineFactory {
	return maps.Clone(engineFactoryRegistry)
}
