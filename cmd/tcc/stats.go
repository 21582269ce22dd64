package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/trackcache/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show analysis cache usage per feature type",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pruner := store.NewPruner(db)
	stats, err := pruner.CacheStats()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("Cache is empty.")
		return nil
	}

	var totalEntries int
	var totalBytes int64
	fmt.Printf("%-16s %8s %10s %10s\n", "TYPE", "ENTRIES", "FRAMES", "SIZE")
	for _, s := range stats {
		fmt.Printf("%-16s %8d %10d %10s\n",
			s.AnalysisType, s.Entries, s.Frames, humanize.Bytes(uint64(s.Bytes)))
		totalEntries += s.Entries
		totalBytes += s.Bytes
	}
	fmt.Printf("%-16s %8d %21s\n", "total", totalEntries, humanize.Bytes(uint64(totalBytes)))
	return nil
}
