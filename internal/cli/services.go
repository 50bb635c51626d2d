package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"deltacar/server/internal/catalog"
	"deltacar/server/internal/config"
	"deltacar/server/internal/storage"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 250 * time.Millisecond

var watchImport bool

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Manage the service catalog",
}

var servicesImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import services from a JSON or TOML file",
	Long: `Reads service documents and upserts them into the catalog. A .json file
holds an array of documents; a .toml file holds [[services]] tables.
Documents whose _id is a UUID keep it; others get a new one.`,
	Args: cobra.ExactArgs(1),
	RunE: runServicesImport,
}

func init() {
	servicesImportCmd.Flags().BoolVar(&watchImport, "watch", false, "re-import whenever the file changes")
	servicesCmd.AddCommand(servicesImportCmd)
	rootCmd.AddCommand(servicesCmd)
}

func runServicesImport(cmd *cobra.Command, args []string) error {
	path := filepath.Clean(args[0])
	docs, err := readServiceFile(path)
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}
	cat := catalog.New(store.Pool())

	if err := importServices(ctx, cmd, cat, docs); err != nil {
		return err
	}
	if !watchImport {
		return nil
	}
	return watchServiceFile(ctx, path, func() {
		docs, err := readServiceFile(path)
		if err == nil {
			err = importServices(ctx, cmd, cat, docs)
		}
		if err != nil {
			cmd.PrintErrf("reimport failed: %v\n", err)
		}
	})
}

func importServices(ctx context.Context, cmd *cobra.Command, cat *catalog.Catalog, docs []storage.Document) error {
	ids, err := cat.Import(ctx, docs)
	if err != nil {
		return fmt.Errorf("import services: %w", err)
	}
	for _, id := range ids {
		cmd.Println(id.String())
	}
	cmd.Printf("imported %d services\n", len(ids))
	return nil
}

// watchServiceFile calls reload after path is written or replaced, until ctx
// is done. The parent directory is watched so editors that save by rename
// are still seen.
func watchServiceFile(ctx context.Context, path string, reload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == path && ev.Has(fsnotify.Write|fsnotify.Create) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-timer.C:
			reload()
		}
	}
}

func readServiceFile(path string) ([]storage.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var docs []storage.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var file struct {
			Services []storage.Document `toml:"services"`
		}
		if err := toml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		docs = file.Services
	default:
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("parse %s: entry %d is not an object", path, i)
		}
	}
	if len(docs) == 0 {
		return nil, errors.New("no services in file")
	}
	return docs, nil
}
