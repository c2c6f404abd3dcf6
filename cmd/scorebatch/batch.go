package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"scorebatch/internal/task"
)

var (
	batchReference string
	batchLimit     int
)

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.csv>",
	Short: "Submit a manifest of recordings and wait for all results",
	Long: `Run a one-shot batch without the HTTP server. The manifest is a CSV
with an audio_path column and an optional name column; when name is empty
the file's base name is used. The command exits non-zero if any recording
fails to score.`,
	Example: `  scorebatch batch recordings.csv
  scorebatch batch recordings.csv --reference "the quick brown fox" --limit 4`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchReference, "reference", "", "reference text sent with every submission (default: saved settings)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max concurrent uploads (default: saved settings)")
}

type manifestEntry struct {
	Path string
	Name string
}

func runBatch(cmd *cobra.Command, args []string) error {
	entries, err := readManifest(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("manifest %s lists no recordings", args[0])
	}

	manager, store, err := buildManager(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	manager.SetBaseContext(ctx)
	defer manager.Stop()

	rc := task.RunConfig{Limit: batchLimit, Reference: batchReference}
	saved := store.Get()
	if rc.Limit < 1 {
		rc.Limit = saved.MaxConcurrentUploads
	}
	if rc.Reference == "" {
		rc.Reference = saved.ReferenceText
	}

	incoming := make([]task.Incoming, 0, len(entries))
	closers := make([]io.Closer, 0, len(entries))
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, e := range entries {
		f, err := os.Open(e.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", e.Path, err)
		}
		closers = append(closers, f)
		name := e.Name
		if name == "" {
			name = e.Path
		}
		incoming = append(incoming, task.Incoming{Name: name, Payload: f})
	}

	if _, err := manager.Add(incoming); err != nil {
		return err
	}

	log.Info().Int("recordings", len(incoming)).Int("limit", rc.Limit).Msg("batch started")
	if err := manager.Run(ctx, rc); err != nil {
		return err
	}
	if !manager.WaitAll(ctx) {
		log.Warn().Msg("interrupted while waiting for results")
	}

	return summarize(manager)
}

// readManifest parses the CSV manifest. The header row names the columns;
// only audio_path is required.
func readManifest(path string) ([]manifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	pathCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "audio_path":
			pathCol = i
		case "name":
			nameCol = i
		}
	}
	if pathCol < 0 {
		return nil, fmt.Errorf("manifest %s has no audio_path column", path)
	}

	var entries []manifestEntry
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		entry := manifestEntry{Path: strings.TrimSpace(record[pathCol])}
		if entry.Path == "" {
			continue
		}
		if nameCol >= 0 && nameCol < len(record) {
			entry.Name = strings.TrimSpace(record[nameCol])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func summarize(manager *task.Manager) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tRESULT")

	var failed int
	for _, t := range manager.Snapshot() {
		detail := t.ResultLocation
		if t.Status == task.StatusError {
			detail = t.ErrorMessage
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Status, detail)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d recording(s) failed", failed)
	}
	return nil
}
