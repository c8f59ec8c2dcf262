package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// broadcasterPortRangeSize mirrors internal/broadcaster's owner port race
// range: a Service tries basePort..basePort+broadcasterPortRangeSize-1
// before giving up.
const broadcasterPortRangeSize = 11

// runStatus prints a snapshot of the memory store, recent evolution job
// runs, and which process (if any) currently holds the event broadcaster's
// HTTP/SSE owner port — a read-only command that can run alongside a live
// "serve" without contending for it.
func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	namespace := fs.String("n", "global", "namespace to count memories in (no cross-namespace total exists)")
	jobLimit := fs.Int("jobs", 5, "number of recent job runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	listOpts := storage.ListOptions{Limit: 1, IncludeArchived: true, Namespace: types.ParseNamespace(*namespace)}
	page, err := a.store.List(ctx, listOpts)
	if err != nil {
		return fmt.Errorf("count memories: %w", err)
	}
	fmt.Printf("storage:    %s (%s)\n", dbPath(a.cfg), a.cfg.Storage.StorageEngine)
	fmt.Printf("memories:   %d (namespace %s)\n", page.Total, *namespace)

	runs, err := a.store.RecentRuns(ctx, *jobLimit)
	if err != nil {
		return fmt.Errorf("list job runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("jobs:       no runs recorded yet")
	} else {
		fmt.Println("jobs:")
		for _, r := range runs {
			fmt.Printf("  %-14s %-10s started=%s processed=%d changed=%d\n",
				r.JobName, r.Status, r.StartedAt.Format(time.RFC3339), r.MemoriesProcessed, r.ChangesMade)
		}
	}

	fmt.Printf("broadcaster: %s\n", broadcasterRole(a.cfg.Broadcaster.BasePort))
	return nil
}

// broadcasterRole probes the HTTP owner-port range the way a new Service
// instance would on startup: whichever port answers /health is the current
// owner, and this process would become a client rather than owning the
// port itself.
func broadcasterRole(basePort int) string {
	if basePort <= 0 {
		basePort = 3000
	}
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for port := basePort; port < basePort+broadcasterPortRangeSize; port++ {
		url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
		resp, err := client.Get(url)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return fmt.Sprintf("owned by another process on port %d", port)
		}
	}
	return fmt.Sprintf("no owner running (ports %d-%d free; next \"serve\" will claim one)", basePort, basePort+broadcasterPortRangeSize-1)
}
