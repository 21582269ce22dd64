package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/franz/trackcache/internal/meta"
	"github.com/franz/trackcache/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Register audio files from a directory into a playlist",
	Long: `Walk a directory tree, register every audio file as a track, read its
tags for the playlist view and append it to the target playlist.

Analysis itself is not run here; the player schedules it lazily the
first time a track's visuals are sampled.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("playlist", "Library", "playlist to append tracks to")
	scanCmd.Flags().Bool("no-progress", false, "disable the progress bar")
}

func runScan(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}

	playlistName, _ := cmd.Flags().GetString("playlist")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	path, err := dbPath()
	if err != nil {
		return err
	}
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var bar *progressbar.ProgressBar
	if !noProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if d.IsDir() || !meta.IsAudioFile(p) {
			return nil
		}
		paths = append(paths, p)
		if bar != nil {
			bar.Add(1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	if bar != nil {
		bar.Finish()
	}

	if len(paths) == 0 {
		log.Info("no audio files found", "dir", dir)
		return nil
	}

	playlistID, err := db.EnsurePlaylist(playlistName)
	if err != nil {
		return err
	}
	added, err := db.AddTracks(playlistID, paths)
	if err != nil {
		return err
	}

	// Tag extraction after registration, so a bad tag never blocks the
	// playlist insert.
	tagged := 0
	for _, p := range paths {
		track, err := db.GetTrackByPath(p)
		if err != nil || track == nil {
			continue
		}
		m := meta.Extract(p)
		m.TrackID = track.ID
		if err := db.UpsertTrackMeta(&m); err != nil {
			log.Warn("failed to store tags", "path", p, "error", err)
			continue
		}
		if m.Valid {
			tagged++
		}
	}

	log.Info("scan complete", "found", len(paths), "added", added, "tagged", tagged, "playlist", playlistName)
	return nil
}
