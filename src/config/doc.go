// Package config defines the configuration for a murmur node.
//
// Regardless of how murmur is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, murmur relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  peers.json   // (optional) a JSON file listing the initial neighbors, also
//               // used by the static directory.
//  murmur.toml  // (optional) configuration file read by the CLI.
//  logs/<id>.log // per-node log file, written when LogFile is set.
package config
