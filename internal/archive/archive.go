package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/dump-ingestion-api/internal/models"
)

// Store persists archive objects by location.
// Locations are produced by Locate and are opaque to callers.
type Store interface {
	// Locate maps a relative key ("subdir/name") to a location
	Locate(key string) string
	// Write creates or replaces the object at location
	Write(ctx context.Context, location string, data []byte) error
	// Read returns the object at location
	Read(ctx context.Context, location string) ([]byte, error)
	// Remove deletes the object; a missing object is not an error
	Remove(ctx context.Context, location string) error
	Exists(ctx context.Context, location string) (bool, error)
}

// StoreError is returned by stores for any I/O failure
type StoreError struct {
	Op       string
	Location string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Cause returns the bare reason, without operation or location
func (e *StoreError) Cause() string {
	var pathErr *fs.PathError
	if errors.As(e.Err, &pathErr) {
		return pathErr.Err.Error()
	}
	return e.Err.Error()
}

// Writer computes archive locations and writes canonical copies
type Writer struct {
	store Store
}

// NewWriter creates a Writer over store
func NewWriter(store Store) *Writer {
	return &Writer{store: store}
}

// Store returns the underlying store
func (w *Writer) Store() Store {
	return w.store
}

// Location returns where the record named identifier is archived:
// {root}/{storage_dir}/{identifier}_{suffix}.
func (w *Writer) Location(entity *models.Entity, identifier string) string {
	return w.store.Locate(Key(entity, identifier))
}

// Key returns the store-relative key for identifier
func Key(entity *models.Entity, identifier string) string {
	return path.Join(entity.StorageDir, sanitize(identifier)+"_"+entity.FileSuffix)
}

// Write serializes item canonically and writes it at location
func (w *Writer) Write(ctx context.Context, location string, entity *models.Entity, item *models.ValidatedItem) error {
	data, err := Canonical(entity, item)
	if err != nil {
		return err
	}
	return w.store.Write(ctx, location, data)
}

// Remove deletes the object at location
func (w *Writer) Remove(ctx context.Context, location string) error {
	return w.store.Remove(ctx, location)
}

// Canonical renders item as the archived JSON document: every declared
// field plus universal_id and vil_id, absent values as null, timestamps in
// RFC 3339 UTC with fractional seconds, keys sorted, four-space indentation.
func Canonical(entity *models.Entity, item *models.ValidatedItem) ([]byte, error) {
	doc := make(map[string]interface{}, len(entity.Fields)+2)
	for _, f := range entity.Fields {
		v := item.Values[f.Name]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		doc[f.Name] = v
	}
	doc["universal_id"] = nullable(item.UniversalID)
	doc["vil_id"] = nullable(item.ExternalID)

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode canonical json: %w", err)
	}
	return append(data, '\n'), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// sanitize keeps identifiers to a single safe path segment
func sanitize(identifier string) string {
	var b strings.Builder
	for _, r := range identifier {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "_"
	}
	return s
}
