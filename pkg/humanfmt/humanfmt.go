// Package humanfmt renders sizes, counts, durations and rates for logs and
// CLI output.
package humanfmt

import (
	"fmt"
	"strconv"
	"time"
)

// IEC byte units.
const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30
	TiB = 1 << 40
)

type unit struct {
	size   float64
	suffix string
}

var byteUnits = []unit{{TiB, "TiB"}, {GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}}

var countUnits = []unit{{1e9, "B"}, {1e6, "M"}, {1e3, "K"}}

func scaled(v float64, units []unit, sep string) (string, bool) {
	for _, u := range units {
		if v >= u.size {
			return fmt.Sprintf("%.2f%s%s", v/u.size, sep, u.suffix), true
		}
	}
	return "", false
}

// Bytes formats a byte count, e.g. "1.23 GiB".
func Bytes(b int64) string {
	if s, ok := scaled(float64(b), byteUnits, " "); ok {
		return s
	}
	return fmt.Sprintf("%d B", b)
}

// BytesUint64 is Bytes for unsigned counts.
func BytesUint64(b uint64) string {
	return Bytes(int64(b))
}

// Count formats a count with a decimal suffix, e.g. "1.23M".
func Count(n int64) string {
	if s, ok := scaled(float64(n), countUnits, ""); ok {
		return s
	}
	return strconv.FormatInt(n, 10)
}

// CountUint64 is Count for unsigned counts.
func CountUint64(n uint64) string {
	return Count(int64(n))
}

// Duration formats d compactly: "2h15m", "1m30s", "1.23s", "45.6ms".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		return trimZero(fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute), "0m")
	case d >= time.Minute:
		return trimZero(fmt.Sprintf("%dm%ds", d/time.Minute, (d%time.Minute)/time.Second), "0s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	}
	return fmt.Sprintf("%dns", d.Nanoseconds())
}

func trimZero(s, suffix string) string {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix && s[len(s)-len(suffix)-1] > '9' {
		return s[:len(s)-len(suffix)]
	}
	return s
}

// Throughput formats bytes moved in d as a rate, e.g. "123.40 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	rate := float64(bytes) / d.Seconds()
	if s, ok := scaled(rate, byteUnits, " "); ok {
		return s + "/s"
	}
	return fmt.Sprintf("%.0f B/s", rate)
}

// Ratio formats raw/stored as a compression ratio, e.g. "3.42x".
func Ratio(raw, stored uint64) string {
	if stored == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", float64(raw)/float64(stored))
}
