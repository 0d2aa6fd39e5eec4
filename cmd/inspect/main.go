// Command inspect scans a gptchat data directory and prints stored keys,
// optionally with values. Useful for poking at a live or copied DB.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/dustin/go-humanize"
)

func main() {
	var (
		dbPath string
		prefix string
		limit  int
		values bool
	)
	flag.StringVar(&dbPath, "db", "", "data directory (the server's db_path)")
	flag.StringVar(&prefix, "prefix", "", "only keys with this prefix, e.g. user: or session:")
	flag.IntVar(&limit, "limit", 0, "stop after this many keys (0 = all)")
	flag.BoolVar(&values, "values", false, "print values as well as keys")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	store := filepath.Join(dbPath, "store")
	db, err := pebble.Open(store, &pebble.Options{ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", store, err)
		os.Exit(1)
	}
	defer db.Close()

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterator: %v\n", err)
		os.Exit(1)
	}
	defer iter.Close()

	p := []byte(prefix)
	n := 0
	var total uint64
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if len(p) > 0 && !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if values {
			fmt.Printf("%s\t%s\n", iter.Key(), iter.Value())
		} else {
			fmt.Printf("%s\n", iter.Key())
		}
		total += uint64(len(iter.Value()))
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	fmt.Fprintf(os.Stderr, "%d keys, %s of values\n", n, humanize.Bytes(total))
}
