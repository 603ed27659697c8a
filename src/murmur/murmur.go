package murmur

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/directory"
	"github.com/mosaicnetworks/murmur/src/events"
	"github.com/mosaicnetworks/murmur/src/failure"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/peers"
	"github.com/mosaicnetworks/murmur/src/service"
)

// Murmur is the engine that assembles a node from a Config: transport,
// directory, event sinks, node and HTTP service.
type Murmur struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Directory directory.Directory
	Bus       *events.Bus
	Metrics   *events.MetricsSink
	Service   *service.Service
	logger    *logrus.Entry
}

// NewMurmur creates an uninitialised engine. Transport and Directory may be
// set before Init to override the ones described by the Config.
func NewMurmur(config *config.Config) *Murmur {
	engine := &Murmur{
		Config: config,
	}

	return engine
}

func (m *Murmur) initTransport() error {
	if m.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		m.Config.BindAddr,
		m.Config.AdvertiseAddr,
		m.Config.MaxPool,
		m.Config.TCPTimeout,
		m.logger,
	)

	if err != nil {
		return err
	}

	m.Transport = transport

	return nil
}

func (m *Murmur) initDirectory() error {
	if m.Directory != nil {
		return nil
	}

	switch m.Config.Directory {
	case config.DirectoryInmem:
		m.Directory = directory.NewInmemDirectory()
	case config.DirectoryStatic:
		dir, err := directory.NewStaticDirectory(m.Config.DataDir)
		if err != nil {
			return err
		}
		m.Directory = dir
	case config.DirectoryEtcd:
		dir, err := directory.NewEtcdDirectory(
			m.Config.EtcdEndpoints,
			m.Config.EtcdDialTimeout,
			m.logger,
		)
		if err != nil {
			return err
		}
		m.Directory = dir
	default:
		return fmt.Errorf("unknown directory %q", m.Config.Directory)
	}

	m.logger.WithField("directory", m.Config.Directory).Debug("Directory")

	return nil
}

func (m *Murmur) initSinks() {
	m.Bus = events.NewBus(m.logger)
	m.Metrics = events.NewMetricsSink()

	m.Bus.Attach(events.NewLogSink(m.logger, logrus.InfoLevel))
	m.Bus.Attach(m.Metrics)
}

func (m *Murmur) initNode() error {
	if m.Config.ID == "" {
		return fmt.Errorf("node id is required")
	}

	nodeConfig := node.NewConfig(
		m.Config.HeartbeatInterval,
		m.Config.AckTimeout,
		m.Config.MaxRetries,
		m.Config.DeliveryBuffer,
		m.logger.Logger,
	)

	n, err := node.NewNode(m.Config.ID, nodeConfig, m.Transport, m.Directory, m.Bus)
	if err != nil {
		return err
	}

	if m.Config.Failure != "" && m.Config.Failure != "none" {
		mode, err := failure.ParseMode(m.Config.Failure)
		if err != nil {
			return err
		}
		if err := n.SetFailureMode(mode, true); err != nil {
			return err
		}
	}

	m.Node = n

	return nil
}

func (m *Murmur) initService() {
	if !m.Config.NoService && m.Config.ServiceAddr != "" {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Node, m.Metrics.Handler(), m.logger)
	}
}

// Init builds every component. It does not start anything.
func (m *Murmur) Init() error {
	m.logger = m.Config.Logger().WithField("this_id", m.Config.ID)

	if err := m.initTransport(); err != nil {
		return err
	}

	if err := m.initDirectory(); err != nil {
		return err
	}

	m.initSinks()

	if err := m.initNode(); err != nil {
		return err
	}

	m.initService()

	return nil
}

// Start listens for RPCs, activates the node and connects it to the peers
// listed in the datadir's peers.json.
func (m *Murmur) Start() error {
	go m.Transport.Listen()

	if m.Service != nil {
		go m.Service.Serve()
	}

	m.Node.RunAsync()

	if err := m.Node.Activate(); err != nil {
		return err
	}

	m.ConnectPeers()

	return nil
}

// ConnectPeers connects to every peer of the datadir's peers.json, except
// this node. Unreachable peers are logged and skipped.
func (m *Murmur) ConnectPeers() {
	ps, err := peers.NewJSONPeers(m.Config.DataDir).Peers()
	if err != nil {
		m.logger.WithError(err).Warn("Reading peers.json")
		return
	}

	_, others := peers.ExcludePeer(ps, m.Config.ID)

	for _, p := range others {
		if err := m.Node.AddNeighbor(p); err != nil {
			m.logger.WithError(err).WithField("peer", p.ID).Warn("Connecting to peer")
		}
	}
}

// Close stops the node, the event bus and the directory.
func (m *Murmur) Close() {
	if m.Node != nil {
		m.Node.Close()
	}

	if m.Bus != nil {
		m.Bus.Close()
	}

	if c, ok := m.Directory.(io.Closer); ok {
		if err := c.Close(); err != nil {
			m.logger.WithError(err).Error("Closing directory")
		}
	}
}
