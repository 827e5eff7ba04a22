package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/flox/flox-activations/internal/activations"
)

// listRow is the JSON shape emitted when stdout is not a terminal, matching
// the CLI ergonomics split the teacher uses elsewhere: a human table on a
// tty, machine-readable JSON when piped.
type listRow struct {
	ID          string `json:"id"`
	StorePath   string `json:"store_path"`
	Ready       bool   `json:"ready"`
	StartID     string `json:"start_id"`
	Attachments []int  `json:"attachments"`
}

// cmdList prints every activation for an environment: a table when stdout
// is a terminal, JSON lines otherwise.
func cmdList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", defaultRuntimeDir(), "runtime directory (env: FLOX_RUNTIME_DIR)")
	env := fs.String("env", "", "environment path (required)")
	_ = fs.Parse(os.Args[2:])

	if *env == "" {
		log.Fatalf("flox-activations list: --env is required")
	}

	registryPath := activations.RegistryPath(*runtimeDir, *env)
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		log.Fatalf("flox-activations list: %v", err)
	}
	defer lock.Unlock()

	var rows []listRow
	if reg != nil {
		checked, err := reg.CheckVersion()
		if err != nil {
			log.Fatalf("flox-activations list: %v", err)
		}
		for _, a := range checked.Unwrap().Activations {
			rows = append(rows, listRow{
				ID:          a.ID,
				StorePath:   a.StorePath,
				Ready:       a.Ready,
				StartID:     a.StartID,
				Attachments: a.AttachedPIDs(),
			})
		}
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		printTable(rows)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			log.Fatalf("flox-activations list: %v", err)
		}
	}
}

func printTable(rows []listRow) {
	if len(rows) == 0 {
		fmt.Println("no activations")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTORE PATH\tREADY\tATTACHMENTS")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", r.ID, r.StorePath, r.Ready, len(r.Attachments))
	}
	w.Flush()
}
