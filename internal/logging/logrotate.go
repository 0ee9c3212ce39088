package logging

import (
	"fmt"
	"strings"

	"github.com/psantana5/ecolaunch/pkg/descriptor"
)

// RotateOptions tunes the generated logrotate stanza
type RotateOptions struct {
	Frequency string // daily, weekly, monthly
	Keep      int
	MaxSize   string // e.g. "100M", empty for none
}

// DefaultRotateOptions rotates daily and keeps two weeks
func DefaultRotateOptions() RotateOptions {
	return RotateOptions{
		Frequency: "daily",
		Keep:      14,
	}
}

// GenerateLogrotateConfig creates a logrotate configuration covering the
// three log files of a descriptor. copytruncate is used because the child
// keeps its log descriptors open for its whole lifetime.
func GenerateLogrotateConfig(d descriptor.LaunchDescriptor, opts RotateOptions) string {
	if opts.Frequency == "" {
		opts.Frequency = "daily"
	}
	if opts.Keep <= 0 {
		opts.Keep = 14
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Logrotate configuration for %s\n", d.Name)
	fmt.Fprintf(&b, "# Install: sudo cp this file to /etc/logrotate.d/ecolaunch-%s\n\n", fileSafe(d.Name))

	seen := make(map[string]bool, 3)
	var paths []string
	for _, p := range d.LogFiles() {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	b.WriteString(strings.Join(paths, "\n"))

	fmt.Fprintf(&b, ` {
    %s
    rotate %d
`, opts.Frequency, opts.Keep)
	if opts.MaxSize != "" {
		fmt.Fprintf(&b, "    maxsize %s\n", opts.MaxSize)
	}
	b.WriteString(`    compress
    delaycompress
    missingok
    notifempty
    copytruncate
}
`)
	return b.String()
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
