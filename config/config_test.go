package config

import (
	"github.com/RuiFG/streaming/streaming-state/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	options := Default()
	assert.Nil(t, options.Validate())
	assert.Equal(t, index.NCow, options.WriteMode())
}

func TestLoadWithoutFile(t *testing.T) {
	options, err := Load("")
	require.Nil(t, err)
	assert.Equal(t, Default(), options)
}

func TestLoadMergesEnvFile(t *testing.T) {
	options, err := Load("testdata/state.yml")
	require.Nil(t, err)
	assert.Equal(t, "nutsdb", options.Store.Backend)
	assert.Equal(t, "/tmp/state-test", options.Store.Dir)
	assert.True(t, options.Store.Sync)
	assert.Equal(t, int64(64*1024*1024), options.Store.SegmentSize)
	assert.Equal(t, index.Cow, options.WriteMode())
	assert.Equal(t, 64, options.Index.HashCapacity)
	assert.Equal(t, 0.75, options.Index.HashFactor)
	assert.True(t, options.Checkpoint.Atomic)
	assert.Equal(t, 10, options.Checkpoint.CompactEvery)
	assert.Equal(t, 3, options.Checkpoint.TolerableFailures)
	assert.Equal(t, "debug", options.Log.Level)
	assert.Equal(t, "console", options.Log.Encoder)
	assert.True(t, options.Metrics.Prometheus)
	assert.Equal(t, 5*time.Second, options.Metrics.ReportInterval)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("STATE_STORE_BACKEND", "pebble")
	t.Setenv("STATE_STORE_DIR", "/data/pebble")
	t.Setenv("STATE_CHECKPOINT_COMPACT_EVERY", "4")
	options, err := Load("")
	require.Nil(t, err)
	assert.Equal(t, "pebble", options.Store.Backend)
	assert.Equal(t, "/data/pebble", options.Store.Dir)
	assert.Equal(t, 4, options.Checkpoint.CompactEvery)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load("testdata/invalid.yml")
	assert.ErrorContains(t, err, "rocksdb")
	_, err = Load("testdata/missing.yml")
	assert.NotNil(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(o *Options){
		"dir":        func(o *Options) { o.Store.Backend = "leveldb" },
		"write mode": func(o *Options) { o.Index.WriteMode = "mvcc" },
		"capacity":   func(o *Options) { o.Index.HashCapacity = 0 },
		"factor":     func(o *Options) { o.Index.HashFactor = 1.5 },
		"compact":    func(o *Options) { o.Checkpoint.CompactEvery = -1 },
		"level":      func(o *Options) { o.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			options := Default()
			mutate(options)
			assert.NotNil(t, options.Validate())
		})
	}
}
