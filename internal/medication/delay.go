package medication

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DelayOff is the textual form of a disabled follow-up.
const DelayOff = "off"

// ParseFollowUpDelay parses "off" (or "") as zero, otherwise a positive Go duration.
func ParseFollowUpDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, DelayOff) {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid follow-up delay %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid follow-up delay %q: must be positive", s)
	}
	return d, nil
}

// FormatFollowUpDelay is the inverse of ParseFollowUpDelay.
func FormatFollowUpDelay(d time.Duration) string {
	if d <= 0 {
		return DelayOff
	}
	return d.String()
}

// Delay is a follow-up delay as written in YAML: "off" or a duration.
type Delay time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Delay) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseFollowUpDelay(s)
	if err != nil {
		return err
	}
	*d = Delay(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Delay) MarshalYAML() (any, error) {
	return FormatFollowUpDelay(time.Duration(d)), nil
}
