package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	locketdb "github.com/i5heu/ouroboros-locket"
	"github.com/i5heu/ouroboros-locket/internal/config"
	"github.com/i5heu/ouroboros-locket/pkg/locket"
	"github.com/i5heu/ouroboros-locket/pkg/merge"
)

var strategies = map[string]merge.Strategy{
	"a":            merge.UseA,
	"b":            merge.UseB,
	"ontop":        merge.UseOnTop,
	"newer":        merge.UseNewer,
	"newerplustop": merge.UseNewerPlusTop,
}

func usage() {
	fmt.Println("Usage: locket [-config file] <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  list")
	fmt.Println("  fields <locket>")
	fmt.Println("  write <locket> <field> <json-value>")
	fmt.Println("  read <locket> <field>")
	fmt.Println("  delete <locket>")
	fmt.Println("  merge [-strategy newer] <target> <source>")
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	fileConfig, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	conf, err := fileConfig.DB()
	if err != nil {
		fail(err)
	}

	db, err := locketdb.NewLocketDB(conf)
	if err != nil {
		fail(fmt.Errorf("error initializing DB: %w", err))
	}
	defer db.Close()

	if err := run(db, args[0], args[1:]); err != nil {
		db.Close()
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func run(db *locketdb.LocketDB, command string, args []string) error {
	switch command {
	case "list":
		names, err := db.ListLockets()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "fields":
		if len(args) != 1 {
			return errors.New("fields needs <locket>")
		}
		l, err := db.LoadLocket(args[0])
		if err != nil {
			return err
		}
		names := make([]string, 0, len(l.GetAllFields()))
		for name := range l.GetAllFields() {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			latest, _ := l.GetField(name).Latest()
			fmt.Printf("%-24s %s  %s\n", name, latest.Hash.String()[:16], latest.Date.Format("2006-01-02 15:04:05"))
		}
		return nil

	case "write":
		if len(args) != 3 {
			return errors.New("write needs <locket> <field> <json-value>")
		}
		var value any
		if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
			return fmt.Errorf("value is not JSON: %w", err)
		}
		l, err := db.LoadLocket(args[0])
		if errors.Is(err, locketdb.ErrNotFound) {
			l = locket.CreateNew()
		} else if err != nil {
			return err
		}
		if err := l.WriteContent(args[1], value, locket.WriteOptions{}); err != nil {
			return err
		}
		return db.SaveLocket(args[0], l)

	case "read":
		if len(args) != 2 {
			return errors.New("read needs <locket> <field>")
		}
		l, err := db.LoadLocket(args[0])
		if err != nil {
			return err
		}
		if !l.HasField(args[1]) {
			return fmt.Errorf("field %q not found", args[1])
		}
		value, err := l.ReadContent(args[1], locket.ReadOptions{})
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "delete":
		if len(args) != 1 {
			return errors.New("delete needs <locket>")
		}
		return db.DeleteLocket(args[0])

	case "merge":
		mergeCmd := flag.NewFlagSet("merge", flag.ExitOnError)
		strategyName := mergeCmd.String("strategy", "newer", "conflict strategy: a, b, ontop, newer or newerplustop")
		mergeCmd.Parse(args)
		if mergeCmd.NArg() != 2 {
			return errors.New("merge needs <target> <source>")
		}
		strategy, ok := strategies[*strategyName]
		if !ok {
			return fmt.Errorf("unknown strategy %q", *strategyName)
		}
		source, err := db.LoadLocket(mergeCmd.Arg(1))
		if err != nil {
			return err
		}
		merged, err := db.MergeInto(mergeCmd.Arg(0), source, merge.ResolveWith(strategy))
		if err != nil {
			return err
		}
		fmt.Printf("Merged %d fields into %s\n", len(merged.GetAllFields()), mergeCmd.Arg(0))
		return nil
	}

	usage()
	return fmt.Errorf("unknown command %q", command)
}
