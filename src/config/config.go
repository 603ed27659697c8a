package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/murmur/src/common"
)

// Default filenames.
const (
	// DefaultLogDir is the name of the folder, within the datadir, containing
	// the per-node log files.
	DefaultLogDir = "logs"

	// DefaultConfigFile is the name of the optional configuration file in the
	// datadir, without extension.
	DefaultConfigFile = "murmur"
)

// Directory backends.
const (
	DirectoryInmem  = "inmem"
	DirectoryEtcd   = "etcd"
	DirectoryStatic = "static"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultLogFile           = false
	DefaultBindAddr          = "127.0.0.1:1337"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultHeartbeatInterval = 2000 * time.Millisecond
	DefaultAckTimeout        = 3000 * time.Millisecond
	DefaultMaxRetries        = 3
	DefaultTCPTimeout        = 10000 * time.Millisecond
	DefaultMaxPool           = 2
	DefaultDirectory         = DirectoryStatic
	DefaultEtcdDialTimeout   = 5000 * time.Millisecond
	DefaultFailure           = "none"
	DefaultDeliveryBuffer    = 1024
)

// Config contains all the configuration properties of a murmur node.
type Config struct {
	// DataDir is the top-level directory containing murmur configuration and
	// logs
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile enables the per-node log file <datadir>/logs/<id>.log
	LogFile bool `mapstructure:"log-file"`

	// ID is the identifier of the node in the network. It is the key used in
	// the directory and the sender id of every broadcast message.
	ID string `mapstructure:"id"`

	// BindAddr is the local address:port where this node listens for RPCs from
	// other nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatInterval is the period of the liveness probes sent to every
	// neighbor.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`

	// AckTimeout is the initial delay before a pending message is resent. It
	// only ever increases, when heartbeats observe slower round trips.
	AckTimeout time.Duration `mapstructure:"ack-timeout"`

	// MaxRetries is the number of times a pending message is resent before it
	// is dropped.
	MaxRetries int `mapstructure:"max-retries"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of RPC connections. It must exceed the
	// longest delay injected by the Delay failure strategy.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Directory selects the naming service: inmem, etcd, or static (the
	// peers.json file in the datadir).
	Directory string `mapstructure:"directory"`

	// EtcdEndpoints lists the etcd servers used when Directory is etcd.
	EtcdEndpoints []string `mapstructure:"etcd-endpoints"`

	// EtcdDialTimeout ...
	EtcdDialTimeout time.Duration `mapstructure:"etcd-dial-timeout"`

	// Failure is the fault injection mode installed at startup: none,
	// omission, or delay.
	Failure string `mapstructure:"failure"`

	// DeliveryBuffer is the capacity of the channel through which delivered
	// messages are handed to the application.
	DeliveryBuffer int `mapstructure:"delivery-buffer"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		LogFile:           DefaultLogFile,
		BindAddr:          DefaultBindAddr,
		ServiceAddr:       DefaultServiceAddr,
		HeartbeatInterval: DefaultHeartbeatInterval,
		AckTimeout:        DefaultAckTimeout,
		MaxRetries:        DefaultMaxRetries,
		TCPTimeout:        DefaultTCPTimeout,
		MaxPool:           DefaultMaxPool,
		Directory:         DefaultDirectory,
		EtcdDialTimeout:   DefaultEtcdDialTimeout,
		Failure:           DefaultFailure,
		DeliveryBuffer:    DefaultDeliveryBuffer,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetLogger replaces the underlying logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// LogDir returns the full path of the folder containing log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, DefaultLogDir)
}

// LogFilePath returns the full path of this node's log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir(), c.ID+".log")
}

// Logger returns a formatted logrus Entry, with prefix set to "murmur". When
// LogFile is set, every entry is also written, with timestamps, to the node's
// log file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile {
			if hook, err := c.fileHook(); err != nil {
				c.logger.WithError(err).Warn("Failed to open log file, using default stderr")
			} else {
				c.logger.Hooks.Add(hook)
			}
		}
	}
	return c.logger.WithField("prefix", "murmur")
}

func (c *Config) fileHook() (logrus.Hook, error) {
	if err := os.MkdirAll(c.LogDir(), 0755); err != nil {
		return nil, err
	}

	path := c.LogFilePath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, err
	}
	f.Close()

	return lfshook.NewHook(
		path,
		&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		},
	), nil
}

// DefaultDataDir return the default directory name for top-level murmur config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Murmur")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Murmur")
		} else {
			return filepath.Join(home, ".murmur")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
