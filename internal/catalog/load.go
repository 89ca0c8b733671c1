package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"leaflens/internal/services"
)

//go:embed schema.json
var schemaJSON []byte

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func documentSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("catalog.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add catalog schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("catalog.schema.json")
	})
	return compiledSchema, compileErr
}

// Validate checks raw catalog JSON against the document schema and rejects
// duplicate IDs.
func Validate(data []byte) (Document, error) {
	schema, err := documentSchema()
	if err != nil {
		return Document{}, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return Document{}, services.Wrap(services.ErrValidation, "catalog", "decode", "invalid JSON", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Document{}, services.Wrap(services.ErrValidation, "catalog", "validate", "document does not match schema", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, services.Wrap(services.ErrValidation, "catalog", "decode", "invalid entry", err)
	}
	seen := make(map[string]struct{}, len(doc.Entries))
	var dupes []string
	for _, e := range doc.Entries {
		id := strings.TrimSpace(e.ID)
		if _, ok := seen[id]; ok {
			dupes = append(dupes, id)
			continue
		}
		seen[id] = struct{}{}
	}
	if len(dupes) > 0 {
		return Document{}, services.Wrap(services.ErrValidation, "catalog", "validate",
			"duplicate entry ids: "+strings.Join(dupes, ", "), nil)
	}
	return doc, nil
}

// Load reads, validates, and indexes the catalog file at path. A missing file
// yields an empty snapshot and a not-found error so callers can decide.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Build(nil, path), services.Wrap(services.ErrNotFound, "catalog", "load", path, err)
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	doc, err := Validate(data)
	if err != nil {
		return nil, err
	}
	return Build(doc.Entries, path), nil
}

// Write stores entries as a catalog document at path, replacing it atomically.
func Write(path string, entries []Entry) error {
	data, err := json.MarshalIndent(Document{Version: 1, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure catalog directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}
