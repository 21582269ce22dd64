package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/franz/trackcache/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the cache database",
	Long: `Run diagnostic checks to ensure the analysis cache can operate:

- Database file location and writability
- SQLite version
- Schema migration (brings the database up to the current version)
- Database integrity

Use this command to troubleshoot cache problems.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	failed  bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var results []checkResult

	path, err := dbPath()
	if err != nil {
		return err
	}
	results = append(results, checkResult{name: "database path", message: path})

	if info, err := os.Stat(filepath.Dir(path)); err == nil && info.IsDir() {
		results = append(results, checkResult{name: "data directory", message: "exists"})
	} else {
		results = append(results, checkResult{name: "data directory", message: "will be created on open"})
	}

	if v := store.SQLiteVersion(); v != "" {
		results = append(results, checkResult{name: "sqlite version", message: v})
	} else {
		results = append(results, checkResult{name: "sqlite version", message: "unavailable", failed: true})
	}

	db, err := store.Open(path)
	if err != nil {
		results = append(results, checkResult{name: "open and migrate", message: err.Error(), failed: true})
	} else {
		defer db.Close()
		results = append(results, checkResult{name: "open and migrate", message: "ok"})

		if err := db.CheckIntegrity(); err != nil {
			results = append(results, checkResult{name: "integrity", message: err.Error(), failed: true})
		} else {
			results = append(results, checkResult{name: "integrity", message: "ok"})
		}
	}

	failures := 0
	for _, r := range results {
		marker := "ok"
		if r.failed {
			marker = "FAIL"
			failures++
		}
		fmt.Printf("[%-4s] %-18s %s\n", marker, r.name, r.message)
	}
	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	return nil
}
