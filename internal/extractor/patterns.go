package extractor

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Pattern is one named text-matching rule. Patterns are tried in declaration
// order against the raw payload; the first match wins.
type Pattern struct {
	Name      string
	EventType string
	re        *regexp.Regexp
}

// NewPattern compiles a pattern. Capture groups must be named; each named
// group becomes a field in the parsed event.
func NewPattern(name, eventType, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", name, err)
	}
	return Pattern{Name: name, EventType: eventType, re: re}, nil
}

func mustPattern(name, eventType, expr string) Pattern {
	p, err := NewPattern(name, eventType, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPatterns returns the built-in pattern list. Order matters: an ssh
// failure line also matches the generic syslog pattern, so the specific
// patterns come first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		mustPattern("ssh_failed", "ssh_login_failed",
			`(?P<timestamp>\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(?P<host>\S+)\s+sshd\[\d+\]:\s+Failed password for (?P<user>\S+) from (?P<src_ip>\d+\.\d+\.\d+\.\d+)`),
		mustPattern("ssh_success", "ssh_login_success",
			`(?P<timestamp>\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(?P<host>\S+)\s+sshd\[\d+\]:\s+Accepted password for (?P<user>\S+) from (?P<src_ip>\d+\.\d+\.\d+\.\d+)`),
		mustPattern("apache_access", "web_access",
			`(?P<src_ip>\d+\.\d+\.\d+\.\d+)\s+-\s+-\s+\[(?P<timestamp>[^\]]+)\]\s+"(?P<method>\S+)\s+(?P<url>\S+)\s+HTTP/[^"]+"\s+(?P<status>\d+)\s+(?P<size>\d+)`),
		mustPattern("syslog_generic", "syslog",
			`(?P<timestamp>\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(?P<host>\S+)\s+(?P<process>\S+):\s+(?P<message>.*)`),
	}
}

type patternSpec struct {
	Name      string `yaml:"name"`
	EventType string `yaml:"event_type"`
	Pattern   string `yaml:"pattern"`
}

// LoadPatternsFile reads an ordered pattern list from a YAML file. When a
// file is configured it replaces the built-in list entirely, so the file
// order is the evaluation order.
func LoadPatternsFile(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}

	var specs []patternSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse patterns file: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("patterns file %s contains no patterns", path)
	}

	patterns := make([]Pattern, 0, len(specs))
	for _, s := range specs {
		if s.Name == "" || s.EventType == "" || s.Pattern == "" {
			return nil, fmt.Errorf("pattern entry missing name, event_type or pattern")
		}
		p, err := NewPattern(s.Name, s.EventType, s.Pattern)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
