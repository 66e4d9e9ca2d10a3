package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Script is an ordered list of event payloads to replay. Each payload is the
// raw JSON of one envelope, emitted as a single data event.
type Script struct {
	Events []string
}

// ParseScript reads a replay script. One payload per line; blank lines and
// lines starting with # are skipped.
func ParseScript(r io.Reader) (*Script, error) {
	script := &Script{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		script.Events = append(script.Events, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	return script, nil
}

// LoadScript parses the replay script at path.
func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script %s: %w", path, err)
	}
	defer f.Close()

	return ParseScript(f)
}
