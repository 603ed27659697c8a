package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
)

// Config holds the protocol parameters of a Node.
type Config struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`
	AckTimeout        time.Duration `mapstructure:"ack-timeout"`
	MaxRetries        int           `mapstructure:"max-retries"`
	DeliveryBuffer    int           `mapstructure:"delivery-buffer"`
	Logger            *logrus.Logger
}

// NewConfig ...
func NewConfig(heartbeat time.Duration,
	ackTimeout time.Duration,
	maxRetries int,
	deliveryBuffer int,
	logger *logrus.Logger) *Config {

	return &Config{
		HeartbeatInterval: heartbeat,
		AckTimeout:        ackTimeout,
		MaxRetries:        maxRetries,
		DeliveryBuffer:    deliveryBuffer,
		Logger:            logger,
	}
}

// DefaultConfig returns the parameters of the protocol as deployed: 2s
// heartbeats, 3s initial ACK timeout and 3 retries.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatInterval: 2000 * time.Millisecond,
		AckTimeout:        3000 * time.Millisecond,
		MaxRetries:        3,
		DeliveryBuffer:    1024,
		Logger:            logger,
	}
}

// TestConfig returns a Config with short timers and a logger writing through
// t.Log.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatInterval = 50 * time.Millisecond
	config.AckTimeout = 100 * time.Millisecond
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
