// Tetris Versus terminal client. Plays a match through the menu, or follows
// one directly with -spectate.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tetris-versus/internal/client"
	"tetris-versus/pkg/logger"
)

var (
	version    = "1.0.0"
	serverAddr = flag.String("server", "localhost:8080", "Server address (host:port)")
	spectate   = flag.Int("spectate", 0, "Match id to watch instead of playing")
	logLevel   = flag.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	logFile    = flag.String("log-file", "", "Log file path (optional)")
)

func main() {
	flag.Parse()

	logger.SetGlobalLogLevel(logger.ParseLevel(*logLevel))
	if *logFile != "" {
		if err := logger.Client.SetFile(*logFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set log file: %v\n", err)
			os.Exit(1)
		}
	}
	logger.Client.Info("Tetris Versus client v%s, server %s", version, *serverAddr)

	c := client.NewClient(*serverAddr)
	closeOnSignal(c)

	var err error
	if *spectate > 0 {
		err = c.Spectate(*spectate)
	} else {
		err = c.Start()
	}
	if err != nil {
		logger.Client.Error("Client stopped: %v", err)
		os.Exit(1)
	}
}

// closeOnSignal drops the connection on Ctrl-C so the server sees a clean
// disconnect, whether playing or spectating
func closeOnSignal(c *client.Client) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		c.Close()
		os.Exit(0)
	}()
}
