// Command mnemosyne is the single entry point for the memory substrate:
// database lifecycle (init), the long-running RPC+scheduler+broadcaster
// process (serve), thin CLI clients that talk to the same engine in-process
// (remember, recall, list), operational introspection (status), and
// credential management (config).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("mnemosyne: ")
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "remember":
		err = runRemember(ctx, os.Args[2:])
	case "recall":
		err = runRecall(ctx, os.Args[2:])
	case "list":
		err = runList(ctx, os.Args[2:])
	case "status":
		err = runStatus(ctx, os.Args[2:])
	case "config":
		err = runConfig(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "mnemosyne: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%v", err)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `mnemosyne: semantic memory substrate for LLM-driven development sessions

Usage:
  mnemosyne init                          create the database and run migrations
  mnemosyne serve                         start the RPC server, scheduler, and event broadcaster
  mnemosyne remember <content> [flags]    capture a memory
  mnemosyne recall <query> [flags]        hybrid ranked search
  mnemosyne list [flags]                  enumerate memories
  mnemosyne status                        print database stats, scheduler, broadcaster state
  mnemosyne config set-key <provider>     store an API credential in the OS secret store
  mnemosyne config show-key <provider>    show whether a credential is configured
`)
}
