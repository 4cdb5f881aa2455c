package objectpool

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestRegisterFlagsAndApplyDefaults(t *testing.T) {
	cfg := Config{}
	f := flag.NewFlagSet("test", flag.PanicOnError)
	cfg.RegisterFlagsAndApplyDefaults("pool", f)

	assert.Equal(t, 8, cfg.Shards)
	assert.Equal(t, 64, cfg.LocalCapacity)
	assert.Equal(t, int64(0), cfg.MaxObjects)

	require.NoError(t, f.Parse([]string{"-pool.shards=16", "-pool.max-objects=1000"}))
	assert.Equal(t, 16, cfg.Shards)
	assert.Equal(t, int64(1000), cfg.MaxObjects)
}

func TestConfigYaml(t *testing.T) {
	in := `
shards: 4
local_capacity: 32
max_objects: 500
`
	cfg := Config{}
	require.NoError(t, yaml.UnmarshalStrict([]byte(in), &cfg))

	assert.Equal(t, Config{
		Shards:        4,
		LocalCapacity: 32,
		MaxObjects:    500,
	}, cfg)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	rt := Config{}
	require.NoError(t, yaml.Unmarshal(out, &rt))
	assert.Equal(t, cfg, rt)
}
