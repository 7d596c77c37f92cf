package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/df07/go-progressive-volume/web/server"
)

func main() {
	// Parse command line flags
	port := flag.Int("port", 8080, "Port to serve on")
	scenesDir := flag.String("scenes", "scenes", "Directory holding JSON scene files")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}

	// Create and start web server
	webServer := server.NewServer(*port, *scenesDir, level)

	fmt.Printf("Progressive Volume Web Server\n")
	fmt.Printf("Visit http://localhost:%d to start rendering\n", *port)

	if err := webServer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}
}
