// Command demosite starts a local web site with deliberate accessibility
// defects for exercising the scanner.
// Usage: go run ./cmd/demosite [port]
// Default port: 9999
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/axescan/axescan/internal/demosite"
)

func main() {
	cfg := demosite.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	server := demosite.NewServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
