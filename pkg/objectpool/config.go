package objectpool

import (
	"flag"

	"github.com/pkg/errors"
)

// Config holds the pool's shape. All fields have working defaults; zero
// values are replaced by RegisterFlagsAndApplyDefaults or by New.
type Config struct {
	// Shards is the number of global LIFOs frees are scattered across.
	Shards int `yaml:"shards"`

	// LocalCapacity is the size of each of the hot and cold caches held by a
	// Local handle.
	LocalCapacity int `yaml:"local_capacity"`

	// MaxObjects caps the number of objects the pool will ever mint.
	// Zero means unbounded.
	MaxObjects int64 `yaml:"max_objects"`
}

// RegisterFlagsAndApplyDefaults registers the pool flags with the given
// prefix and applies defaults.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.Shards, prefix+".shards", 8, "Number of sharded global free lists.")
	f.IntVar(&cfg.LocalCapacity, prefix+".local-capacity", 64, "Objects held by each of a local handle's hot and cold caches.")
	f.Int64Var(&cfg.MaxObjects, prefix+".max-objects", 0, "Maximum objects ever minted. 0 to disable.")
}

func (cfg *Config) applyDefaults() {
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.LocalCapacity <= 0 {
		cfg.LocalCapacity = 64
	}
}

func (cfg *Config) validate() error {
	if cfg.MaxObjects < 0 {
		return errors.New("objectpool: max_objects must be >= 0")
	}
	return nil
}
