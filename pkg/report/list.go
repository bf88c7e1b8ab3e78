// Package report reads the image lists consumed by the command line tools
// and writes the matching results: ranked lists, candidate and match files
// and an HTML summary.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
)

// ErrMalformedLine is returned for a list line that cannot be parsed
var ErrMalformedLine = errors.New("malformed list line")

// GroundTruth is one database image with the landmark it depicts
type GroundTruth struct {
	File     string
	Landmark int
}

// ReadList returns the non-empty lines of the list file at path. Every
// line must name an existing .yaml.gz or .xml.gz file.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer f.Close()

	files, err := ParseList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, file := range files {
		if err := checkFile(file); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// ParseList returns the trimmed non-empty lines of r
func ParseList(r io.Reader) ([]string, error) {
	var files []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// ReadGroundTruth reads a "<key.file> <landmark.id>" list from path
func ReadGroundTruth(path string) ([]GroundTruth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer f.Close()

	entries, err := ParseGroundTruth(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range entries {
		if err := checkFile(e.File); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ParseGroundTruth parses "<key.file> <landmark.id>" lines. Landmark ids
// must be non-negative.
func ParseGroundTruth(r io.Reader) ([]GroundTruth, error) {
	var entries []GroundTruth
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w %d: [%s] should be formatted as: <key.file> <landmark.id>", ErrMalformedLine, lineNo, line)
		}
		landmark, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w %d: landmark [%s] is not an integer", ErrMalformedLine, lineNo, fields[1])
		}
		if landmark < 0 {
			return nil, fmt.Errorf("%w %d: landmark id %d should be positive or zero", ErrMalformedLine, lineNo, landmark)
		}
		entries = append(entries, GroundTruth{File: fields[0], Landmark: landmark})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func checkFile(file string) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("keypoints file [%s] doesn't exist", file)
	}
	return yamlgz.CheckName("keypoints", file)
}
