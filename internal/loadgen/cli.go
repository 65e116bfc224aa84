package loadgen

import "os"

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Mathboard Load Generator
========================

Submits generated game results to a running mathboard and verifies that the
global leaderboard, top list and per-player ranks agree with a local replay.
The target must start with an empty store.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -players int       Distinct players (default 1000)
  -games int         Game results to submit (default 10000)
  -workers int       Concurrent submitters (default CPU cores * 2)
  -page int          Page size used for the leaderboard walk (default 10)
  -timeout duration  HTTP request timeout (default 10s)
  -async             Submit through /results/async
  -register          Register every player first (identity_mode=registered)
  -settle duration   How long async verification keeps retrying (default 30s)
  -seed uint         Generator seed (default 1)
  -output string     Write the generated games to this JSON file
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  go run ./cmd/loadgen -players 500 -games 20000
  go run ./cmd/loadgen -async -workers 32 -url http://localhost:8080
`)
}
