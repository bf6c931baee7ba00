package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/switchmart/assistant-engine/internal/domain"
)

// LoadDotEnv reads a .env file and exports its pairs into the process
// environment. Existing variables always win, so the file only fills
// gaps. Unparseable lines are skipped and reported at the end as one
// configuration error; every parseable pair is still applied.
func LoadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err // a missing file is fine, callers may ignore it
	}
	defer file.Close()

	var malformed []int
	scanner := bufio.NewScanner(file)
	for n := 1; scanner.Scan(); n++ {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			malformed = append(malformed, n)
			continue
		}
		if key == "" {
			continue // blank line or comment
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(malformed) > 0 {
		return &domain.ErrConfiguration{
			Setting: path,
			Message: fmt.Sprintf("unparseable lines %v", malformed),
		}
	}
	return nil
}

// parseEnvLine splits one line into a key/value pair. Blank lines and
// comments yield an empty key. A line without '=' or without a key is
// malformed. An optional "export " prefix is accepted, and surrounding
// quotes on the value are stripped.
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", true
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	return key, value, true
}
