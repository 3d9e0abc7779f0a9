// Package commands defines the fleetctl CLI.
//
// Commands
//
//   - generate   Write a synthetic fleet dataset directory
//   - import     Load a dataset (directory, JSON or CSV) into the configured store
//   - optimize   Run an induction optimization on the API server
//   - watch      Tail plan or draft events over the websocket stream
//   - dash       Open the terminal dashboard
//
// Configuration comes from the same viper setup as the server (fleetops.yaml,
// FLEETOPS_* env, .env); the --server, --token, --operator and --role flags
// override the client section.
package commands
