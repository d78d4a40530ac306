// notes-import bulk-loads saved web pages (.mht, .mhtml, .html) into a
// section of a notes database. Files that fail to parse are reported by name
// and the rest of the batch keeps going.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yuhoo68/notes/internal/mht"
	"github.com/yuhoo68/notes/internal/store"
)

type options struct {
	dbPath    string
	sectionID int64
	user      string
}

func main() {
	opts := options{}
	rootCmd := &cobra.Command{
		Use:   "notes-import [flags] <file-or-directory>...",
		Short: "Import saved web pages into a notes section",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
			slog.SetDefault(logger)
			return run(cmd.Context(), opts, args, logger)
		},
	}

	rootCmd.Flags().StringVar(&opts.dbPath, "db", "notes.db", "path to the notes database")
	rootCmd.Flags().Int64Var(&opts.sectionID, "section", 0, "target section id (required)")
	rootCmd.Flags().StringVar(&opts.user, "user", "importer", "login recorded as the page creator")
	_ = rootCmd.MarkFlagRequired("section")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string, logger *slog.Logger) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .mht, .mhtml or .html files found in %s", strings.Join(args, ", "))
	}

	db, err := store.Open(ctx, opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	if _, err := db.GetSection(ctx, opts.sectionID); err != nil {
		return fmt.Errorf("section %d: %w", opts.sectionID, err)
	}

	imported := 0
	var failures []string
	for _, file := range files {
		if err := importFile(ctx, db, opts, file); err != nil {
			logger.Warn("skipping file", "file", file, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(file), err))
			continue
		}
		imported++
		logger.Info("imported", "file", file)
	}

	logger.Info("import finished", "imported", imported, "failed", len(failures))
	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, strings.Join(failures, "\n"))
	}
	return nil
}

func importFile(ctx context.Context, db *store.Store, opts options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc mht.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mht", ".mhtml":
		doc, err = mht.ParseArchive(data, filepath.Base(path))
	default:
		doc, err = mht.ParseHTMLFile(data, filepath.Base(path))
	}
	if err != nil {
		return err
	}

	now := time.Now()
	return db.InsertPage(ctx, store.Page{
		ID:        uuid.NewString(),
		SectionID: opts.sectionID,
		Title:     doc.Title,
		BodyHTML:  doc.BodyHTML,
		CreatedBy: opts.user,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// collectFiles expands directory arguments one level deep and keeps only the
// importable extensions, in a stable order.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if importable(arg) {
				files = append(files, arg)
			}
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			full := filepath.Join(arg, entry.Name())
			if importable(full) {
				files = append(files, full)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func importable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mht", ".mhtml", ".html", ".htm":
		return true
	}
	return false
}
