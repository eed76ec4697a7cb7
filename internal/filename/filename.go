// Package filename decodes CAD export filenames of the form
// <call_number>_<16-digit timestamp>[~metadata].xml into their call number
// and ordering timestamp. Decoding is pure; no filesystem access.
package filename

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrBadFilename marks names that do not follow the export naming scheme.
// Unrelated files in the watch directory hit this constantly, so callers
// treat it as an expected outcome rather than a fault.
var ErrBadFilename = errors.New("not a call export filename")

// Decoded is the result of parsing an export filename.
type Decoded struct {
	// Name is the basename as seen on disk, extension included.
	Name string
	// CallNumber is the leading numeric token (business key for versioning).
	CallNumber string
	// Timestamp is the canonical "YYYY-MM-DD HH:MM:SS.ff" rendering of the
	// packed 16-digit token.
	Timestamp string
	// TimestampInt is the raw 16-digit token as an integer, used for fast
	// ordering comparisons.
	TimestampInt int64
}

// Decode parses name (with or without a path prefix) into its components.
func Decode(name string) (Decoded, error) {
	base := filepath.Base(name)
	head := base
	if i := strings.IndexByte(head, '~'); i >= 0 {
		head = head[:i]
	}
	if ext := filepath.Ext(head); ext != "" {
		head = strings.TrimSuffix(head, ext)
	}

	call, ts, ok := strings.Cut(head, "_")
	if !ok {
		return Decoded{}, fmt.Errorf("%w: %q has no call/timestamp separator", ErrBadFilename, base)
	}
	if call == "" || !allDigits(call) {
		return Decoded{}, fmt.Errorf("%w: %q has a non-numeric call number", ErrBadFilename, base)
	}
	if len(ts) != 16 || !allDigits(ts) {
		return Decoded{}, fmt.Errorf("%w: %q timestamp token is not 16 digits", ErrBadFilename, base)
	}

	month := mustInt(ts[4:6])
	day := mustInt(ts[6:8])
	hour := mustInt(ts[8:10])
	minute := mustInt(ts[10:12])
	second := mustInt(ts[12:14])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return Decoded{}, fmt.Errorf("%w: %q timestamp encodes invalid calendar values", ErrBadFilename, base)
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %q timestamp overflows", ErrBadFilename, base)
	}

	return Decoded{
		Name:         base,
		CallNumber:   call,
		Timestamp:    fmt.Sprintf("%s-%s-%s %s:%s:%s.%s", ts[0:4], ts[4:6], ts[6:8], ts[8:10], ts[10:12], ts[12:14], ts[14:16]),
		TimestampInt: tsInt,
	}, nil
}

// Compare orders two filenames by their encoded timestamp. The second return
// is false when either name fails to decode; the pair is then unorderable
// and the -1/0/1 value carries no meaning.
func Compare(a, b string) (int, bool) {
	da, errA := Decode(a)
	db, errB := Decode(b)
	if errA != nil || errB != nil {
		return 0, false
	}
	switch {
	case da.TimestampInt < db.TimestampInt:
		return -1, true
	case da.TimestampInt > db.TimestampInt:
		return 1, true
	default:
		return 0, true
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func mustInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
