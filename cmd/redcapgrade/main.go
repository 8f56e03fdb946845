package main

import (
	"redcapgrade/internal/cli"
)

// Set at build time, e.g. go build -ldflags "-X main.version=v1.2.0".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	cli.Execute()
}
