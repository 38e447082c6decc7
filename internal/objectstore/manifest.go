package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"docq/internal/models"
	"docq/internal/store"
)

// Key layout for processed artifacts.
const (
	documentPrefix = "documents"
	sidecarPrefix  = "sidecars"
	keyTimeFormat  = "20060102T150405"
)

// DocumentKey returns the object key for a processed document's markdown.
func DocumentKey(jobName, filename string, at time.Time) string {
	return path.Join(documentPrefix, jobName,
		fmt.Sprintf("%s_%s.md", at.UTC().Format(keyTimeFormat), baseName(filename)))
}

// SidecarKey returns the object key for a document's sidecar JSON.
func SidecarKey(jobName, filename string, at time.Time) string {
	return path.Join(sidecarPrefix, jobName,
		fmt.Sprintf("%s_%s.sidecar.json", at.UTC().Format(keyTimeFormat), baseName(filename)))
}

func baseName(filename string) string {
	name := path.Base(filename)
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// Manifests appends entries to the bucket-wide manifest object using
// read-modify-write. Concurrent appenders can race; the manifest is a
// convenience index, the sidecars remain the durable record.
type Manifests struct {
	objects store.ObjectStore
	key     string
}

// NewManifests creates a manifest appender over the given object store.
func NewManifests(objects store.ObjectStore, manifestKey string) *Manifests {
	return &Manifests{objects: objects, key: manifestKey}
}

// Load reads the current manifest, returning an empty one when the object
// does not exist yet.
func (m *Manifests) Load(ctx context.Context) (*models.Manifest, error) {
	body, err := m.objects.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			now := time.Now().UTC()
			return &models.Manifest{Version: "1.0", CreatedAt: now, UpdatedAt: now}, nil
		}
		return nil, fmt.Errorf("failed to load manifest %s: %w", m.key, err)
	}

	var manifest models.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", m.key, err)
	}
	return &manifest, nil
}

// Append adds entries to the manifest and writes it back.
func (m *Manifests) Append(ctx context.Context, entries []models.ManifestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	manifest, err := m.Load(ctx)
	if err != nil {
		return err
	}

	manifest.Documents = append(manifest.Documents, entries...)
	manifest.DocumentCount = len(manifest.Documents)
	manifest.UpdatedAt = time.Now().UTC()

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if _, err := m.objects.Put(ctx, m.key, body, "application/json"); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", m.key, err)
	}

	log.Infof("Manifest %s now tracks %d documents (+%d)", m.key, manifest.DocumentCount, len(entries))
	return nil
}
