package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/trackcache/internal/store"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict stale and excess analysis cache entries",
	Long: `Evict cache entries older than the age ceiling, then evict the least
recently accessed entries until the cache fits under the size cap. The
most recently accessed entries are always protected, so the tracks in
rotation keep their analysis across a prune.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().Int64("max-bytes", 256<<20, "total cache size cap in bytes, 0 disables the cap")
	pruneCmd.Flags().Int("max-age-days", 180, "evict entries not accessed in this many days")
	pruneCmd.Flags().Int("protect-recent", 64, "never evict this many most recently accessed entries")
	viper.BindPFlag("prune.max_bytes", pruneCmd.Flags().Lookup("max-bytes"))
	viper.BindPFlag("prune.max_age_days", pruneCmd.Flags().Lookup("max-age-days"))
	viper.BindPFlag("prune.protect_recent", pruneCmd.Flags().Lookup("protect-recent"))
}

func runPrune(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	maxBytes := viper.GetInt64("prune.max_bytes")
	maxAgeDays := viper.GetInt("prune.max_age_days")
	protectRecent := viper.GetInt("prune.protect_recent")

	pruner := store.NewPruner(db)
	result, err := pruner.Prune(maxBytes, maxAgeDays, protectRecent)
	if err != nil {
		return err
	}

	fmt.Printf("Pruned %d entries, reclaimed %s (%s -> %s)\n",
		result.EntriesPruned,
		humanize.Bytes(uint64(result.BytesReclaimed())),
		humanize.Bytes(uint64(result.BytesBefore)),
		humanize.Bytes(uint64(result.BytesAfter)))
	return nil
}
