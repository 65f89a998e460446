package main

import "github.com/plate-spinner/plate-spinner/internal/cli"

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	cli.Execute()
}
