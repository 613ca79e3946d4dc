package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/debemdeboas/docsave/internal/config"
	"github.com/debemdeboas/docsave/internal/document"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/session"
)

// store is the write side shared by both tiers.
type store func(ctx context.Context, id repository.ContentID, content string) error

// main imports a directory of serialized documents into the configured
// local store, or into the remote store with -remote.
func main() {
	path := flag.String("path", "", "Path to the directory containing .json documents")
	configPath := flag.String("config", "config.yaml", "Path to the YAML or TOML config file")
	toRemote := flag.Bool("remote", false, "Write to the remote store instead of the local one")
	flag.Parse()

	if *path == "" {
		log.Fatal("The --path flag is required")
	}

	godotenv.Load()
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	ctx := context.Background()
	var put store
	if *toRemote {
		remoteRepo, err := session.OpenRemote(ctx, config.AppConfig.Remote)
		if err != nil {
			log.Fatalf("Error opening remote store: %v", err)
		}
		put = func(ctx context.Context, id repository.ContentID, content string) error {
			_, err := remoteRepo.Save(ctx, id, content)
			return err
		}
	} else {
		localRepo, err := session.OpenLocal(config.AppConfig.Local)
		if err != nil {
			log.Fatalf("Error opening local store: %v", err)
		}
		defer localRepo.Close()
		put = localRepo.Put
	}

	imported, failed := importDir(ctx, *path, put)
	log.Printf("Imported %d documents, %d failed", imported, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// importDir stores every .json file in dir under the content id taken from
// its file name.
func importDir(ctx context.Context, dir string, put store) (imported, failed int) {
	files, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("Error reading directory %s: %v", dir, err)
		return 0, 1
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if err := importFile(ctx, dir, file, put); err != nil {
			log.Printf("Error processing file %s: %v", file.Name(), err)
			failed++
			continue
		}
		imported++
		log.Printf("Successfully stored document from file: %s", file.Name())
	}
	return imported, failed
}

func importFile(ctx context.Context, dir string, file os.DirEntry, put store) error {
	data, err := os.ReadFile(filepath.Join(dir, file.Name()))
	if err != nil {
		return err
	}

	doc, err := document.Deserialize(string(data))
	if err != nil {
		return err
	}
	// Stored in the same form the coordinator writes.
	content, ok := document.Serialize(doc)
	if !ok {
		return fmt.Errorf("empty document")
	}

	id := repository.ContentID(strings.TrimSuffix(file.Name(), ".json"))
	return put(ctx, id, content)
}
