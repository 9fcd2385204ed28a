package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/loykin/sasswatch"
)

// embedded: run sasswatch inside another program. Launches one watcher for
// the directory given on the command line and prints the live watches.
func main() {
	dir := "scss"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := sasswatch.DefaultConfig()
	if p := os.Getenv("SASSWATCH_SASS_BIN"); p != "" {
		cfg.Compiler.SassBinPath = p
	}

	svc, err := sasswatch.New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	msg, err := svc.Launch(ctx, dir)
	if err != nil {
		fmt.Println("launch failed:", err)
		return
	}
	fmt.Println(msg)
	for d, e := range svc.Snapshot() {
		fmt.Printf("  %s -> %s (pid %d)\n", d, e.Target, e.PID)
	}
	fmt.Println("Edit a .scss file under", dir, "and watch the .min.css appear. Ctrl-C to stop.")
	<-ctx.Done()
}
