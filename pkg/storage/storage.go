// Package storage persists JSON-shaped results and owns the project
// directory layout. A Store is constructed once per process and handed to
// every component that touches the filesystem.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/object-locator/internal/utils"
)

// Error reports a failed load or store
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store reads and writes JSON documents whose top level is an object or an array
type Store struct {
	Layout *Layout
}

// New creates a Store bound to the given layout
func New(layout *Layout) *Store {
	return &Store{Layout: layout}
}

// LoadJSON reads the whole file at path and returns the decoded object
// (map[string]any) or array ([]any).
func (s *Store) LoadJSON(path string) (any, error) {
	raw, err := s.read(path)
	if err != nil {
		return nil, err
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Op: "load", Path: path, Err: errors.Wrap(err, "malformed json")}
	}
	if err := checkShape(data); err != nil {
		return nil, &Error{Op: "load", Path: path, Err: err}
	}
	return data, nil
}

// Decode applies the same checks as LoadJSON and then decodes into v
func (s *Store) Decode(path string, v any) error {
	raw, err := s.read(path)
	if err != nil {
		return err
	}

	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return &Error{Op: "load", Path: path, Err: errors.Wrap(err, "malformed json")}
	}
	if err := checkShape(probe); err != nil {
		return &Error{Op: "load", Path: path, Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Op: "load", Path: path, Err: errors.Wrapf(err, "decode into %T", v)}
	}
	return nil
}

// StoreJSON writes data to path with two-space indentation and verifies the
// result is a regular file. Writes are not atomic; a single writer per path
// is assumed.
func (s *Store) StoreJSON(path string, data any) error {
	if err := checkShape(data); err != nil {
		return &Error{Op: "store", Path: path, Err: err}
	}

	js, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return &Error{Op: "store", Path: path, Err: errors.Wrap(err, "marshal")}
	}
	if err := os.WriteFile(path, append(js, '\n'), 0o644); err != nil {
		return &Error{Op: "store", Path: path, Err: errors.Wrap(err, "write")}
	}

	if !utils.FileExists(path) {
		return &Error{Op: "store", Path: path, Err: errors.New("written file is not a regular file")}
	}
	return nil
}

// IsEmpty reports whether dir contains no entries
func (s *Store) IsEmpty(dir string) (bool, error) {
	empty, err := utils.IsEmptyDir(dir)
	if err != nil {
		return false, errors.Wrapf(err, "read dir %s", dir)
	}
	return empty, nil
}

func (s *Store) read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Op: "load", Path: path, Err: errors.New("does not exist")}
		}
		return nil, &Error{Op: "load", Path: path, Err: errors.Wrap(err, "stat")}
	}
	if !info.Mode().IsRegular() {
		return nil, &Error{Op: "load", Path: path, Err: errors.New("is not a file")}
	}
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, &Error{Op: "load", Path: path, Err: errors.New("is not a .json file")}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Err: errors.Wrap(err, "read")}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &Error{Op: "load", Path: path, Err: errors.New("file is empty")}
	}
	return raw, nil
}

// checkShape accepts non-nil maps and slices and any array; everything else
// would not read back as an object or array
func checkShape(data any) error {
	if data == nil {
		return errors.New("data is null, not an object or array")
	}
	switch reflect.TypeOf(data).Kind() {
	case reflect.Map, reflect.Slice:
		if reflect.ValueOf(data).IsNil() {
			return errors.Errorf("data is a nil %T and would be written as null", data)
		}
		return nil
	case reflect.Array:
		return nil
	default:
		return errors.Errorf("data is of type %T and not an object or array", data)
	}
}
