// Package commands defines the e91 CLI.
//
// Commands
//
//   - demo       Run one exchange, print the verdict and encrypt a message
//   - negotiate  Run the two-party protocol over an in-process classical channel
//   - serve      Serve the HTTP demo API
//
// Every command reads an optional YAML config (--config) over the built-in
// defaults; flags override the file.
package commands
