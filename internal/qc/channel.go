package qc

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Channel identifies one physical sensor channel by station and channel code.
type Channel struct {
	Station string `json:"station" yaml:"station"`
	Code    string `json:"code" yaml:"code"`
}

// NewChannel returns a Channel with canonical (NFC, upper-case, trimmed) codes.
func NewChannel(station, code string) Channel {
	return Channel{Station: canonicalCode(station), Code: canonicalCode(code)}
}

// ParseChannelName parses "STA.CHAN". ok is false when either half is missing.
func ParseChannelName(name string) (ch Channel, ok bool) {
	station, code, found := strings.Cut(name, ".")
	if !found || strings.TrimSpace(station) == "" || strings.TrimSpace(code) == "" {
		return Channel{}, false
	}
	return NewChannel(station, code), true
}

// Name returns the channel's canonical name, "STATION.CODE".
func (c Channel) Name() string {
	return canonicalCode(c.Station) + "." + canonicalCode(c.Code)
}

// IsZero reports whether neither code is set.
func (c Channel) IsZero() bool {
	return c.Station == "" && c.Code == ""
}

func (c Channel) String() string {
	return c.Name()
}

func canonicalCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFC.String(s)))
}
