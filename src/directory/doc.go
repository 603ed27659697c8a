// Package directory maps node ids to the network addresses where they can be
// reached.
//
// A node registers itself when it is activated and unregisters when it shuts
// down. Other nodes look ids up to connect to them, and to find where to send
// an ACK or a NACK for a message whose sender is not a direct neighbor.
//
// Three implementations are provided: InmemDirectory for tests and
// single-process networks, EtcdDirectory which stores registrations as
// lease-bound keys in etcd, and StaticDirectory which serves a read-only
// peers.json file.
package directory
