package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/trackcache/internal/store"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Inspect and manage playlists",
}

var playlistListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List playlists, or the tracks of one playlist",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlaylistList,
}

var playlistClearCmd = &cobra.Command{
	Use:   "clear <name>",
	Short: "Remove all items from a playlist",
	Long: `Remove all items from a playlist. Cached analysis is keyed by file
identity, not playlist membership, so clearing a playlist never evicts
analysis data.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlaylistClear,
}

var playlistSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over track titles, artists, albums and paths",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlaylistSearch,
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistListCmd)
	playlistCmd.AddCommand(playlistClearCmd)
	playlistCmd.AddCommand(playlistSearchCmd)

	playlistListCmd.Flags().Int("limit", 100, "max tracks to show")
	playlistSearchCmd.Flags().Int("limit", 25, "max results to show")
}

func openDB() (*store.Store, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func runPlaylistList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		playlists, err := db.Playlists()
		if err != nil {
			return err
		}
		for _, p := range playlists {
			count, err := db.CountItems(p.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%-30s %d tracks\n", p.Name, count)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	id, err := db.EnsurePlaylist(args[0])
	if err != nil {
		return err
	}
	rows, err := db.FetchWindow(id, 0, limit)
	if err != nil {
		return err
	}
	for i, r := range rows {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		fmt.Printf("%4d  %s", i+1, title)
		if r.Artist != "" {
			fmt.Printf(" - %s", r.Artist)
		}
		fmt.Println()
	}
	return nil
}

func runPlaylistClear(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.EnsurePlaylist(args[0])
	if err != nil {
		return err
	}
	if err := db.ClearPlaylist(id); err != nil {
		return err
	}
	fmt.Printf("Cleared playlist %q\n", args[0])
	return nil
}

func runPlaylistSearch(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	query := ""
	for i, a := range args {
		if i > 0 {
			query += " "
		}
		query += a
	}

	results, err := db.SearchTracks(query, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		fmt.Printf("%s", title)
		if r.Artist != "" {
			fmt.Printf(" - %s", r.Artist)
		}
		if r.Album != "" {
			fmt.Printf(" [%s]", r.Album)
		}
		fmt.Println()
	}
	return nil
}
