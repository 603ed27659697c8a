package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/murmur"
)

//NewRunCmd returns the command that starts a murmur node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runMurmur,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMurmur(cmd *cobra.Command, args []string) error {
	engine := murmur.NewMurmur(&_config.Murmur)

	if err := engine.Init(); err != nil {
		_config.Murmur.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	if err := engine.Start(); err != nil {
		_config.Murmur.Logger().Error("Cannot start node:", err)
		engine.Close()
		return err
	}

	defer engine.Close()

	console := murmur.NewConsole(engine, os.Stdout)
	go console.PrintDeliveries()

	done := make(chan struct{})
	if _config.Interactive {
		go func() {
			if err := console.Run(os.Stdin); err != nil {
				_config.Murmur.Logger().WithError(err).Error("Reading console")
			}
			close(done)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		_config.Murmur.Logger().Debug("Signal received")
	case <-done:
	}

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Murmur.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Murmur.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("log-file", _config.Murmur.LogFile, "Also write logs to <datadir>/logs/<id>.log")
	cmd.Flags().String("id", _config.Murmur.ID, "Identifier of the node in the network")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Murmur.BindAddr, "Listen IP:Port for murmur node")
	cmd.Flags().StringP("advertise", "a", _config.Murmur.AdvertiseAddr, "Advertise IP:Port for murmur node")
	cmd.Flags().DurationP("timeout", "t", _config.Murmur.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Murmur.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.Murmur.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Murmur.ServiceAddr, "Listen IP:Port for HTTP service")

	// Directory
	cmd.Flags().String("directory", _config.Murmur.Directory, "Directory service: static, inmem, or etcd")
	cmd.Flags().StringSlice("etcd-endpoints", _config.Murmur.EtcdEndpoints, "etcd endpoints")
	cmd.Flags().Duration("etcd-dial-timeout", _config.Murmur.EtcdDialTimeout, "etcd dial timeout")

	// Protocol
	cmd.Flags().Duration("heartbeat", _config.Murmur.HeartbeatInterval, "Time between heartbeats")
	cmd.Flags().Duration("ack-timeout", _config.Murmur.AckTimeout, "Initial ACK timeout")
	cmd.Flags().Int("max-retries", _config.Murmur.MaxRetries, "Resends of an unacknowledged message before it is dropped")
	cmd.Flags().Int("delivery-buffer", _config.Murmur.DeliveryBuffer, "Capacity of the delivery channel")
	cmd.Flags().String("failure", _config.Murmur.Failure, "Fault injection at startup: none, omission, or delay")

	// Console
	cmd.Flags().Bool("console", _config.Interactive, "Read commands from stdin")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Murmur.Logger().WithFields(logrus.Fields{
		"murmur.DataDir":           _config.Murmur.DataDir,
		"murmur.ID":                _config.Murmur.ID,
		"murmur.BindAddr":          _config.Murmur.BindAddr,
		"murmur.AdvertiseAddr":     _config.Murmur.AdvertiseAddr,
		"murmur.ServiceAddr":       _config.Murmur.ServiceAddr,
		"murmur.NoService":         _config.Murmur.NoService,
		"murmur.MaxPool":           _config.Murmur.MaxPool,
		"murmur.LogLevel":          _config.Murmur.LogLevel,
		"murmur.LogFile":           _config.Murmur.LogFile,
		"murmur.TCPTimeout":        _config.Murmur.TCPTimeout,
		"murmur.Directory":         _config.Murmur.Directory,
		"murmur.EtcdEndpoints":     _config.Murmur.EtcdEndpoints,
		"murmur.HeartbeatInterval": _config.Murmur.HeartbeatInterval,
		"murmur.AckTimeout":        _config.Murmur.AckTimeout,
		"murmur.MaxRetries":        _config.Murmur.MaxRetries,
		"murmur.Failure":           _config.Murmur.Failure,
		"Console":                  _config.Interactive,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/murmur.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	viper.AddConfigPath(_config.Murmur.DataDir)   // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Murmur.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Murmur.Logger().Debugf("No config file found in: %s", _config.Murmur.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
