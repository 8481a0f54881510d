// app-server is the backend of the telemetry platform: it ingests
// OpenTelemetry traces, logs, browser-session events, and evaluation
// datapoints, persists them durably, and serves realtime and analytical
// reads.
package main

import "github.com/tracefold/app-server/cli"

func main() {
	cli.Execute()
}
