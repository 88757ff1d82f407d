package config

import (
	"github.com/RuiFG/streaming/streaming-state/index"
	"github.com/RuiFG/streaming/streaming-state/log"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"path/filepath"
	"strings"
	"time"
)

// EnvPrefix is prepended to every environment override, STATE_STORE_DIR
// overrides store.dir.
const EnvPrefix = "STATE"

type StoreOptions struct {
	//Backend is one of memory nutsdb leveldb pebble
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Sync    bool   `mapstructure:"sync"`
	//SegmentSize is the nutsdb data file size in bytes
	SegmentSize int64 `mapstructure:"segment_size"`
}

type IndexOptions struct {
	//WriteMode is ncow or cow
	WriteMode    string  `mapstructure:"write_mode"`
	HashCapacity int     `mapstructure:"hash_capacity"`
	HashFactor   float64 `mapstructure:"hash_factor"`
}

type CheckpointOptions struct {
	Atomic            bool `mapstructure:"atomic"`
	CompactEvery      int  `mapstructure:"compact_every"`
	TolerableFailures int  `mapstructure:"tolerable_failures"`
}

type LogOptions struct {
	Level      string `mapstructure:"level"`
	Encoder    string `mapstructure:"encoder"`
	Name       string `mapstructure:"name"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

type MetricsOptions struct {
	Prefix         string        `mapstructure:"prefix"`
	Prometheus     bool          `mapstructure:"prometheus"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

type Options struct {
	//Env selects an extra <name>-<env> file merged over the main one
	Env        string            `mapstructure:"env"`
	Store      StoreOptions      `mapstructure:"store"`
	Index      IndexOptions      `mapstructure:"index"`
	Checkpoint CheckpointOptions `mapstructure:"checkpoint"`
	Log        LogOptions        `mapstructure:"log"`
	Metrics    MetricsOptions    `mapstructure:"metrics"`
}

var backends = map[string]struct{}{"memory": {}, "nutsdb": {}, "leveldb": {}, "pebble": {}}

// Default returns an in-memory configuration that passes Validate.
func Default() *Options {
	return &Options{
		Store: StoreOptions{Backend: "memory", SegmentSize: 64 * 1024 * 1024},
		Index: IndexOptions{WriteMode: "ncow", HashCapacity: 16, HashFactor: 0.75},
		Log:   LogOptions{Level: "info", Encoder: "json", Name: "state"},
		Metrics: MetricsOptions{
			Prefix:         "streaming_state",
			ReportInterval: time.Second,
		},
	}
}

func defaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("env", d.Env)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.sync", d.Store.Sync)
	v.SetDefault("store.segment_size", d.Store.SegmentSize)
	v.SetDefault("index.write_mode", d.Index.WriteMode)
	v.SetDefault("index.hash_capacity", d.Index.HashCapacity)
	v.SetDefault("index.hash_factor", d.Index.HashFactor)
	v.SetDefault("checkpoint.atomic", d.Checkpoint.Atomic)
	v.SetDefault("checkpoint.compact_every", d.Checkpoint.CompactEvery)
	v.SetDefault("checkpoint.tolerable_failures", d.Checkpoint.TolerableFailures)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoder", d.Log.Encoder)
	v.SetDefault("log.name", d.Log.Name)
	v.SetDefault("log.stacktrace", d.Log.Stacktrace)
	v.SetDefault("metrics.prefix", d.Metrics.Prefix)
	v.SetDefault("metrics.prometheus", d.Metrics.Prometheus)
	v.SetDefault("metrics.report_interval", d.Metrics.ReportInterval)
}

// Load reads the yaml file at path, merges <name>-<env>.yml next to it when
// env is set, then applies STATE_ environment overrides. An empty path loads
// defaults and the environment only.
func Load(path string) (*Options, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "failed to read config %s", path)
		}
		if env := v.GetString("env"); env != "" {
			ext := filepath.Ext(path)
			v.SetConfigFile(strings.TrimSuffix(path, ext) + "-" + env + ext)
			//the env file is optional
			_ = v.MergeInConfig()
		}
	}
	options := &Options{}
	if err := v.Unmarshal(options); err != nil {
		return nil, errors.WithMessage(err, "failed to unmarshal config")
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func (o *Options) Validate() error {
	if _, ok := backends[o.Store.Backend]; !ok {
		return errors.Errorf("unknown store backend %q", o.Store.Backend)
	}
	if o.Store.Backend != "memory" && o.Store.Dir == "" {
		return errors.Errorf("store backend %s needs a dir", o.Store.Backend)
	}
	if _, ok := index.ParseWriteMode(o.Index.WriteMode); !ok {
		return errors.Errorf("unknown index write mode %q", o.Index.WriteMode)
	}
	if o.Index.HashCapacity < 1 {
		return errors.Errorf("hash capacity must be positive, got %d", o.Index.HashCapacity)
	}
	if o.Index.HashFactor <= 0 || o.Index.HashFactor > 1 {
		return errors.Errorf("hash factor must be in (0, 1], got %v", o.Index.HashFactor)
	}
	if o.Checkpoint.CompactEvery < 0 || o.Checkpoint.TolerableFailures < 0 {
		return errors.New("checkpoint compact_every and tolerable_failures must not be negative")
	}
	if _, err := log.ParseLevel(o.Log.Level); err != nil {
		return errors.WithMessage(err, "invalid log level")
	}
	return nil
}

// WriteMode returns the parsed index write mode, Validate has checked it.
func (o *Options) WriteMode() index.WriteMode {
	mode, _ := index.ParseWriteMode(o.Index.WriteMode)
	return mode
}
