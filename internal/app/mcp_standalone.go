package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"annotate/internal/config"
	"annotate/internal/service"
)

// ServeMCP runs a standalone MCP server on stdin/stdout. Destructive tools
// wait for approvals answered through a serve process sharing the same
// database.
func ServeMCP(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, Options{Emitter: service.LogEmitter{}, StandaloneMCP: true})
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer a.Close()
	if a.approvals == nil {
		log.Println("[MCP] approvals need a SQL database; destructive tools will time out")
	}

	log.Println("[MCP] Starting standalone stdio server...")
	return a.MCP.ServeStdio()
}
