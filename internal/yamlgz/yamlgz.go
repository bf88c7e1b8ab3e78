// Package yamlgz reads and writes gzip-compressed YAML documents, the
// container used for every persisted artifact (trees, indices, descriptor
// sets).
package yamlgz

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// namePattern matches persisted file names: *.yaml.gz or *.xml.gz
var namePattern = regexp.MustCompile(`^(.+)(\.)(yaml|xml)(\.)(gz)$`)

// ValidName reports whether path carries a .yaml.gz or .xml.gz suffix
func ValidName(path string) bool {
	return namePattern.MatchString(path)
}

// CheckName returns an error naming what when path has the wrong suffix
func CheckName(what, path string) error {
	if !ValidName(path) {
		return fmt.Errorf("%s file [%s] must have the extension .yaml.gz or .xml.gz", what, path)
	}
	return nil
}

// Encode writes v as gzip-compressed YAML to w
func Encode(w io.Writer, v interface{}) error {
	zw := gzip.NewWriter(w)
	enc := yaml.NewEncoder(zw)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		zw.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

// Decode reads gzip-compressed YAML from r into v
func Decode(r io.Reader, v interface{}) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	if err := yaml.NewDecoder(zr).Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("decode yaml: empty document")
		}
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// WriteFile atomically writes v to path: the document is written to a
// temporary file in the same directory and renamed over path on success.
func WriteFile(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes the document at path into v
func ReadFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, v); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
