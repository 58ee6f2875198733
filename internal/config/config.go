// Package config loads framebench settings from flags, environment
// variables and an optional YAML file, and watches that file for changes.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tahsin716/chunkdispatch"
)

const (
	// Name is the base name of the YAML file searched for when no path is given.
	Name = "chunkdispatch"

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "CHUNKDISPATCH_"

	// ConfigFileEnv names the environment variable holding an explicit
	// configuration file path.
	ConfigFileEnv = EnvPrefix + "CONFIG_FILE"
)

// Settings represents the available configuration options for framebench
type Settings struct {

	// The number of workers; 0 derives it from the physical core count
	Workers int `yaml:"workers"`

	// The upper bound of a derived worker count
	MaxWorkers int `yaml:"maxWorkers"`

	// The byte budget of each worker queue
	QueueBytes int `yaml:"queueBytes"`

	// How long a frame may take before it is abandoned; 0 disables the limit
	FrameTimeout time.Duration `yaml:"-"`

	// Whether a failing callback terminates its worker
	StrictCallbacks bool `yaml:"strictCallbacks"`

	// Whether workers are locked to OS threads
	PinThreads bool `yaml:"pinThreads"`

	// The number of frames to render; 0 renders until interrupted
	Frames int `yaml:"frames"`

	// The number of chunks, one mesh each, per frame
	Chunks int `yaml:"chunks"`

	// The minimum level of log messages
	LogLevel string `yaml:"logLevel"`

	// Whether to use the human-readable development log format
	Development bool `yaml:"development"`
}

// keys lists every setting with its flag name, environment suffix and
// default value.
var keys = []struct {
	key  string
	flag string
	env  string
	def  interface{}
}{
	{"workers", "workers", "WORKERS", 0},
	{"maxWorkers", "max-workers", "MAX_WORKERS", chunkdispatch.DefaultMaxWorkers},
	{"queueBytes", "queue-bytes", "QUEUE_BYTES", chunkdispatch.DefaultQueueBytes},
	{"frameTimeout", "frame-timeout", "FRAME_TIMEOUT", time.Duration(0)},
	{"strictCallbacks", "strict", "STRICT_CALLBACKS", false},
	{"pinThreads", "pin-threads", "PIN_THREADS", false},
	{"frames", "frames", "FRAMES", 100},
	{"chunks", "chunks", "CHUNKS", 256},
	{"logLevel", "log-level", "LOG_LEVEL", "info"},
	{"development", "development", "DEVELOPMENT", false},
}

// RegisterFlags adds the framebench flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "absolute path of a YAML configuration file")
	flags.Int("workers", 0, "number of workers (0 derives it from the physical core count)")
	flags.Int("max-workers", chunkdispatch.DefaultMaxWorkers, "upper bound of a derived worker count")
	flags.Int("queue-bytes", chunkdispatch.DefaultQueueBytes, "byte budget of each worker queue")
	flags.Duration("frame-timeout", 0, "abandon frames that take longer than this (0 disables)")
	flags.Bool("strict", false, "terminate workers on callback failures")
	flags.Bool("pin-threads", false, "lock workers to OS threads")
	flags.Int("frames", 100, "number of frames to render (0 renders until interrupted)")
	flags.Int("chunks", 256, "chunks per frame")
	flags.String("log-level", "info", "minimum log level")
	flags.Bool("development", false, "use the development log format")
}

// Loader reads Settings and re-reads them when the configuration file
// changes.
type Loader struct {
	v      *viper.Viper
	logger *zap.SugaredLogger
}

// NewLoader prepares a Loader. flags may be nil; when it is not, it must
// have been populated by RegisterFlags.
func NewLoader(flags *pflag.FlagSet, logger *zap.SugaredLogger) (*Loader, error) {

	// Set our default configuration values
	v := viper.New()
	for _, k := range keys {
		v.SetDefault(k.key, k.def)
		if err := v.BindEnv(k.key, EnvPrefix+k.env); err != nil {
			return nil, err
		}
	}

	// Flags that were set explicitly take precedence over everything else
	configPath, configPathExists := os.LookupEnv(ConfigFileEnv)
	if flags != nil {
		for _, k := range keys {
			if f := flags.Lookup(k.flag); f != nil {
				if err := v.BindPFlag(k.key, f); err != nil {
					return nil, err
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Changed {
			configPath, configPathExists = f.Value.String(), true
		}
	}

	if configPathExists {

		// Verify that the specified value is an absolute path
		if !filepath.IsAbs(configPath) {
			return nil, errors.New("configuration file path must be an absolute path")
		}

		// Verify that the specified file exists
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("specified configuration file does not exist: %s", configPath)
		}

		v.SetConfigFile(configPath)

	} else {

		// Search the working directory and the global config directory
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/chunkdispatch")
	}

	return &Loader{v: v, logger: logger}, nil
}

// Load reads the configuration file, if any, and returns the merged
// settings.
func (l *Loader) Load() (*Settings, error) {

	// Attempt to parse our YAML configuration file if it exists
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			l.logger.Debugw("Configuration file not found, using flags, environment variables and defaults")
		} else {
			return nil, err
		}
	}

	s := &Settings{}
	if err := l.v.Unmarshal(s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	l.logger.Debugw("Parsed configuration data", "config", s, "file", l.v.ConfigFileUsed())
	return s, nil
}

// SetLogger replaces the logger used by Load and Watch. The logging setup
// itself depends on loaded settings, so callers typically start with a
// no-op logger.
func (l *Loader) SetLogger(logger *zap.SugaredLogger) {
	l.logger = logger
}

// ConfigFile returns the path of the configuration file in use, or "" when
// none was found.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load is a shorthand for NewLoader followed by Loader.Load.
func Load(flags *pflag.FlagSet, logger *zap.SugaredLogger) (*Settings, error) {
	l, err := NewLoader(flags, logger)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

func (s *Settings) validate() error {
	switch {
	case s.Workers < 0:
		return fmt.Errorf("workers must be >= 0, got %d", s.Workers)
	case s.Frames < 0:
		return fmt.Errorf("frames must be >= 0, got %d", s.Frames)
	case s.Chunks < 0:
		return fmt.Errorf("chunks must be >= 0, got %d", s.Chunks)
	}
	return nil
}

// YAML renders the settings in the configuration file format. Durations
// are written as strings such as "250ms".
func (s *Settings) YAML() ([]byte, error) {
	out := struct {
		Settings     `yaml:",inline"`
		FrameTimeout string `yaml:"frameTimeout"`
	}{*s, s.FrameTimeout.String()}
	return yaml.Marshal(out)
}

// Options converts the settings into dispatch system options.
func (s *Settings) Options(logger *zap.SugaredLogger) []chunkdispatch.Option {
	return []chunkdispatch.Option{
		chunkdispatch.WithNumWorkers(s.Workers),
		chunkdispatch.WithMaxWorkers(s.MaxWorkers),
		chunkdispatch.WithQueueBytes(s.QueueBytes),
		chunkdispatch.WithFrameTimeout(s.FrameTimeout),
		chunkdispatch.WithStrictCallbacks(s.StrictCallbacks),
		chunkdispatch.WithPinWorkerThreads(s.PinThreads),
		chunkdispatch.WithLogger(logger),
	}
}

// Watch re-reads the configuration file whenever it is written and passes
// the new settings to onChange. It returns when ctx is done. Without a
// configuration file it only waits for ctx.
func (l *Loader) Watch(ctx context.Context, onChange func(*Settings)) error {
	file := l.v.ConfigFileUsed()
	if file == "" {
		<-ctx.Done()
		return nil
	}

	// Create a new filesystem watcher
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are noticed
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		return err
	}

	// Process events and errors
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(file) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			s, err := l.Load()
			if err != nil {
				l.logger.Warnw("Ignoring invalid configuration change", "file", file, "error", err)
				continue
			}
			l.logger.Infow("Configuration file changed", "file", file)
			onChange(s)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warnw("Configuration watcher error", "error", err)
		}
	}
}
