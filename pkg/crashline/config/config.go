// Package config loads client settings from an optional YAML file and
// CRASHLINE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/strongdm/crashline/pkg/crashline"
	"github.com/strongdm/crashline/pkg/crashline/stores/dir"
	"github.com/strongdm/crashline/pkg/crashline/stores/sqlite"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// use a double underscore, e.g. CRASHLINE_STORE__KIND.
const EnvPrefix = "CRASHLINE_"

// Store kinds.
const (
	StoreDir    = "dir"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Settings struct {
	APIKey        string        `koanf:"api_key"`
	Endpoint      string        `koanf:"endpoint"`
	PulseEndpoint string        `koanf:"pulse_endpoint"`
	AppVersion    string        `koanf:"app_version"`
	User          string        `koanf:"user"`
	SyncTimeout   time.Duration `koanf:"sync_timeout"`
	Workers       int           `koanf:"workers"`
	StartupFlush  bool          `koanf:"startup_flush"`
	CrashInfoDir  string        `koanf:"crash_info_dir"`
	DeviceIDFile  string        `koanf:"device_id_file"`
	Scrub         bool          `koanf:"scrub"`
	Debug         bool          `koanf:"debug"`
	Store         StoreSettings `koanf:"store"`
}

type StoreSettings struct {
	Kind string `koanf:"kind"`
	Path string `koanf:"path"`
}

// Load reads settings from path (skipped when empty or missing), then lets
// environment variables override them.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// A missing file is fine, env vars may carry everything.
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"endpoint":       crashline.DefaultEndpoint,
		"pulse_endpoint": crashline.DefaultPulseEndpoint,
		"workers":        4,
		"startup_flush":  true,
		"store.kind":     StoreDir,
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

// OpenStore opens the configured queue store. The returned close function
// releases it and is never nil.
func (s *Settings) OpenStore() (crashline.BlobStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(s.Store.Kind) {
	case StoreMemory:
		return crashline.NewMemoryStore(), noop, nil
	case StoreSQLite:
		path, err := s.storePath("queue.db")
		if err != nil {
			return nil, noop, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, noop, fmt.Errorf("create store dir: %w", err)
		}
		st, err := sqlite.New(path)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case StoreDir, "":
		path, err := s.storePath("reports")
		if err != nil {
			return nil, noop, err
		}
		return dir.New(path), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store kind %q", s.Store.Kind)
	}
}

func (s *Settings) storePath(leaf string) (string, error) {
	if s.Store.Path != "" {
		return s.Store.Path, nil
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(cache, "crashline", leaf), nil
}

// Options converts the settings into client options, opening the store.
// Callers must invoke the returned close function when done with the client.
func (s *Settings) Options() ([]crashline.Option, func() error, error) {
	store, closeStore, err := s.OpenStore()
	if err != nil {
		return nil, closeStore, err
	}

	opts := []crashline.Option{
		crashline.WithAPIKey(s.APIKey),
		crashline.WithEndpoint(s.Endpoint),
		crashline.WithPulseEndpoint(s.PulseEndpoint),
		crashline.WithStore(store),
		crashline.WithWorkers(s.Workers),
		crashline.WithStartupFlush(s.StartupFlush),
	}
	if s.SyncTimeout > 0 {
		opts = append(opts, crashline.WithSyncTimeout(s.SyncTimeout))
	}
	if s.AppVersion != "" {
		opts = append(opts, crashline.WithAppVersion(s.AppVersion))
	}
	if s.User != "" {
		opts = append(opts, crashline.WithUser(s.User))
	}
	if s.CrashInfoDir != "" {
		opts = append(opts, crashline.WithCrashInfoDir(s.CrashInfoDir))
	}
	if s.DeviceIDFile != "" {
		opts = append(opts, crashline.WithDeviceID(crashline.NewFileDeviceID(s.DeviceIDFile)))
	}
	if s.Scrub {
		opts = append(opts, crashline.WithDefaultScrubbing())
	}
	return opts, closeStore, nil
}
