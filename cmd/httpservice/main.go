// Package main provides the httpservice binary: the managed HTTP server and
// a CLI for its admin API.
package main

import (
	"os"

	"github.com/sirosfoundation/go-httpservice/cmd/httpservice/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
