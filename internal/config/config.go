// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config carries every tunable the binaries need. Remote and archive
// settings are optional: absent values leave those subsystems disabled.
type Config struct {
	// StorePath is the JSON file holding the local record store.
	StorePath string

	// Remote selects the remote provider: "memory", "notion", "bigquery"
	// or "" for none.
	Remote string

	NotionToken      string
	NotionDatabaseID string

	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string

	// ArchiveBucket enables the Cloud Storage message archive;
	// ArchiveDir the local-directory one. Bucket wins when both are set.
	ArchiveBucket string
	ArchiveDir    string
}

// Load reads the environment, after merging a .env file when one exists.
// A missing .env is not an error; explicit environment always wins.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		StorePath:        getEnv("TRACKER_STORE_PATH", "records.json"),
		Remote:           getEnv("TRACKER_REMOTE", ""),
		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),
		BigQueryProject:  getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset:  getEnv("BIGQUERY_DATASET", "upi"),
		BigQueryTable:    getEnv("BIGQUERY_TABLE", "records"),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", ""),
		ArchiveDir:       getEnv("ARCHIVE_DIR", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
