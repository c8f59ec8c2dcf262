package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/api/mcp"
	"github.com/rand/mnemosyne/internal/backup"
	"github.com/rand/mnemosyne/internal/broadcaster"
	"github.com/rand/mnemosyne/internal/evolution"
	"github.com/rand/mnemosyne/internal/scheduler"
	"github.com/rand/mnemosyne/pkg/types"
)

// runServe starts the long-running process: the JSON-RPC stdio server, the
// evolution scheduler, and the event broadcaster's HTTP/SSE owner-race
// service, all sharing one storage handle and torn down together on ctx
// cancellation.
func runServe(ctx context.Context, args []string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer a.engine.Shutdown(context.Background())

	bcast := broadcaster.New()
	svc := broadcaster.NewService(bcast, dataDir(a.cfg), a.cfg.Broadcaster.BasePort)
	if err := svc.Start(ctx); err != nil {
		log.Printf("serve: event broadcaster service failed to start: %v", err)
	}
	defer svc.Stop()

	a.engine.SetOnMemoryCreated(func(id uuid.UUID) {
		bcast.Emit(types.EventMemoryStored, id.String(), "", nil)
	})
	a.engine.SetOnEnrichmentComplete(func(id uuid.UUID, linksWritten int) {
		bcast.Emit(types.EventMemoryUpdated, id.String(), "", map[string]int{"links_written": linksWritten})
	})

	if a.cfg.Backup.BackupEnabled {
		if a.cfg.Storage.StorageEngine == "postgres" || a.cfg.Storage.StorageEngine == "postgresql" {
			log.Println("serve: backups are only supported for sqlite storage; skipping")
		} else if bsvc, err := newBackupService(a.cfg); err != nil {
			log.Printf("serve: backup service disabled: %v", err)
		} else {
			go func() {
				if err := bsvc.Start(ctx); err != nil && ctx.Err() == nil {
					log.Printf("serve: backup service stopped: %v", err)
				}
			}()
			defer bsvc.Stop()
		}
	}

	consolidationJob := evolution.NewConsolidationJob(a.store, a.store, a.consolidator)
	jobs := []evolution.Job{
		consolidationJob,
		evolution.NewImportanceJob(a.store, a.store),
		evolution.NewLinkDecayJob(a.store),
		evolution.NewArchivalJob(a.store),
	}
	sched := scheduler.New(jobs, a.store)
	sched.Start(ctx)
	defer sched.Stop()

	server := mcp.NewServer(a.engine, a.store, a.store, a.store, consolidationJob, a.enricher)
	transport := mcp.NewStdioTransport(server, os.Stdin, os.Stdout)

	log.Println("serve: mnemosyne is ready")
	return transport.Serve(ctx)
}
