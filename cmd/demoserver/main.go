// Command demoserver starts a fixture shop with known accessibility defects.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/a11yscan/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   a11yscan Demo Shop")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Every page starts at version 1 with deliberate defects:")
	for _, p := range demoserver.GetAllPages() {
		fmt.Printf("  %-10s %s\n", p.Path, p.Description)
	}
	fmt.Println()
	fmt.Println("Scan a page, fix it from the control panel, then rescan:")
	fmt.Printf("  a11yscan scan http://localhost:%d/signup\n", cfg.Port)
	fmt.Printf("  a11yscan scan --no-cache http://localhost:%d/signup\n", cfg.Port)
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
