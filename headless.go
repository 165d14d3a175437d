package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/coordinator"
)

const headlessPollInterval = 2 * time.Second

// runHeadless drives a run without the TUI: progress lines on stdout,
// checkpoint confirmations read from stdin (a worker number, or "all").
func runHeadless(ctx context.Context, cancel context.CancelFunc, coord *coordinator.Coordinator, chunks []book.Chunk) (coordinator.Summary, error) {
	defer cancel()

	done := make(chan struct{})
	var (
		summary coordinator.Summary
		runErr  error
	)
	go func() {
		defer close(done)
		summary, runErr = coord.Run(ctx, chunks)
	}()

	go readConfirmations(ctx, coord)

	ticker := time.NewTicker(headlessPollInterval)
	defer ticker.Stop()

	var lastPending int
	for {
		select {
		case <-done:
			return summary, runErr

		case <-ticker.C:
			snap := coord.Snapshot()
			fmt.Printf("progress: %d/%d converted, %d failed, elapsed %s\n",
				snap.Completed, snap.TotalUnits, snap.Failed, snap.Elapsed.Round(time.Second))

			if len(snap.Pending) != lastPending {
				lastPending = len(snap.Pending)
				for _, pc := range snap.Pending {
					fmt.Printf("checkpoint: worker %d is waiting (%d requests since last checkpoint)\n",
						pc.WorkerID, pc.Stats.SinceCheckpoint)
				}
				if lastPending > 0 {
					fmt.Println("complete the verification, then type the worker number (or \"all\") and press enter")
				}
			}
		}
	}
}

// readConfirmations turns stdin lines into checkpoint confirmations.
func readConfirmations(ctx context.Context, coord *coordinator.Coordinator) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "all"):
			n := coord.ConfirmAllCheckpoints()
			fmt.Printf("released %d worker(s)\n", n)
		default:
			id, err := strconv.Atoi(line)
			if err != nil {
				fmt.Printf("unrecognized input %q: type a worker number or \"all\"\n", line)
				continue
			}
			if coord.ConfirmCheckpoint(id) {
				fmt.Printf("released worker %d\n", id)
			} else {
				fmt.Printf("worker %d is not waiting\n", id)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug("stdin closed", "err", err)
	}
}
