package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestDefaults(t *testing.T) {
	c := NewDefaultConfig()

	if c.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Fatalf("HeartbeatInterval should be %v, not %v", DefaultHeartbeatInterval, c.HeartbeatInterval)
	}
	if c.MaxRetries != 3 {
		t.Fatalf("MaxRetries should be 3, not %d", c.MaxRetries)
	}
	if c.TCPTimeout <= 5*time.Second {
		t.Fatalf("TCPTimeout should exceed the longest injected delay")
	}
}

func TestLogLevel(t *testing.T) {
	for in, out := range map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.DebugLevel,
	} {
		if l := LogLevel(in); l != out {
			t.Fatalf("LogLevel(%s) should be %v, not %v", in, out, l)
		}
	}
}

func TestLogFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "murmur-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c := NewDefaultConfig()
	c.DataDir = dir
	c.ID = "node1"
	c.LogFile = true
	c.LogLevel = "info"

	c.Logger().Info("hello log file")

	path := filepath.Join(dir, "logs", "node1.log")
	if c.LogFilePath() != path {
		t.Fatalf("log file should be %s, not %s", path, c.LogFilePath())
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello log file") {
		t.Fatalf("log file should contain the entry: %s", data)
	}
}
