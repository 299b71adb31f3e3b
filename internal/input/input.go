// Package input loads payload lists and URL templates.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/selimozcann/redirectvalidator/internal/fuzz"
)

// DefaultPayloadsFile is read when no payload file is given.
const DefaultPayloadsFile = "payloads.txt"

// ErrNoPayloads is returned when a payload file has no usable lines.
var ErrNoPayloads = errors.New("input: no payloads")

// LoadPayloads reads one payload per line from path. Lines are trimmed and
// blank lines skipped; payloads are otherwise kept verbatim and in order.
func LoadPayloads(path string) ([]string, error) {
	if path == "" {
		path = DefaultPayloadsFile
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("payload file %q: %w", path, err)
	}
	defer file.Close()

	payloads, err := readLines(file)
	if err != nil {
		return nil, fmt.Errorf("payload file %q read error: %w", path, err)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("payload file %q: %w", path, ErrNoPayloads)
	}
	return payloads, nil
}

// ReadTemplates reads one URL per line from r and turns each into a URL
// template carrying marker.
func ReadTemplates(r io.Reader, marker string) ([]string, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("url read error: %w", err)
	}
	templates := make([]string, 0, len(lines))
	for _, line := range lines {
		templates = append(templates, fuzz.Inject(line, marker))
	}
	return templates, nil
}

// LoadTemplates is ReadTemplates over a file.
func LoadTemplates(path, marker string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("url file %q: %w", path, err)
	}
	defer file.Close()
	return ReadTemplates(file, marker)
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	var entries []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
