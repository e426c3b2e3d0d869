package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/i5heu/ouroboros-locket/pkg/merge"
	"github.com/i5heu/ouroboros-locket/pkg/workerPool"
)

func main() {
	fields := flag.Int("fields", 1000, "fields per locket")
	rounds := flag.Int("rounds", 10, "merges to run")
	workers := flag.Int("workers", 0, "worker count, 0 picks a default")
	flag.Parse()

	base := locket.CreateNew()
	for i := 0; i < *fields; i++ {
		write(base, i, map[string]any{"n": i})
	}

	a := base.Clone()
	b := base.Clone()
	for i := 0; i < *fields; i += 2 {
		write(a, i, "a")
		write(b, i+1, "b")
	}
	for i := 0; i < *fields; i += 10 {
		write(b, i, "conflict")
	}

	wp := workerPool.NewWorkerPool(workerPool.Config{WorkerCount: *workers})
	defer wp.Close()

	var merged *locket.Locket
	start := time.Now()
	for r := 0; r < *rounds; r++ {
		var err error
		merged, err = merge.Merge(a, b, merge.Options{Pool: wp})
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}
	elapsed := time.Since(start)

	fmt.Println(len(merged.GetAllFields()), "fields merged")
	fmt.Printf("%d rounds in %s, %s per merge\n", *rounds, elapsed, elapsed/time.Duration(*rounds))
}

func write(l *locket.Locket, field int, value any) {
	if err := l.WriteContent(fmt.Sprintf("field-%d", field), value, locket.WriteOptions{}); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
