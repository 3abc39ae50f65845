package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "./data", "shadowd data directory")
	dryRun     = flag.Bool("dry-run", false, "show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "path to back up the database before migration (default: <data-dir>/shadowd.db.backup)")
)

var bucketDocuments = []byte("documents")

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("shadowd database migration tool - backfill document metadata")
	log.Println("==============================================================")

	dbPath := filepath.Join(*dataDir, "shadowd.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}
	log.Printf("database: %s", dbPath)
	log.Printf("dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("failed to create backup: %v", err)
		}
		log.Println("backup created")
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := backfillMetadata(db, *dryRun); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if *dryRun {
		log.Println("dry run completed, no changes made")
	} else {
		log.Println("migration completed successfully")
	}
}

// legacyDocument matches a document record written before the metadata
// field existed: reported/desired state with no per-leaf timestamps.
type legacyDocument struct {
	Reported  map[string]interface{} `json:"reported,omitempty"`
	Desired   map[string]interface{} `json:"desired,omitempty"`
	Metadata  json.RawMessage        `json:"metadata,omitempty"`
	Version   int64                  `json:"version"`
	Timestamp string                 `json:"timestamp"`
}

// backfillMetadata rewrites any document bucket entry missing a metadata
// field, stamping an empty metadata object so pkg/document's merge code
// never has to special-case a nil Metadata on a document written by a
// pre-metadata build.
func backfillMetadata(db *bolt.DB, dryRun bool) error {
	var total, needsBackfill int

	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b == nil {
			log.Println("no documents bucket found; nothing to migrate")
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			total++
			var doc legacyDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if len(doc.Metadata) == 0 {
				needsBackfill++
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	log.Printf("found %d documents, %d missing metadata", total, needsBackfill)

	if dryRun || needsBackfill == 0 {
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)

		// Collect the keys to rewrite first: mutating a bucket while a
		// ForEach cursor is walking it is unsafe.
		var keys [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var doc legacyDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if len(doc.Metadata) == 0 {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			var doc legacyDocument
			if err := json.Unmarshal(b.Get(k), &doc); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			doc.Metadata = json.RawMessage(`{"reported":{},"desired":{}}`)
			encoded, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", k, err)
			}
			if err := b.Put(k, encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
