// Package cooldown implements the per-client, per-queue dispatch
// cooldown timers described in spec §4.3, persisted so that a dispatcher
// restart cannot let a client burst past its rate limit.
package cooldown

import (
	"strconv"
	"strings"
)

// Timers is a client's queue -> unlock-at (epoch milliseconds) map.
// Entries with UnlockAt <= now are semantically absent and may be
// lazily dropped by any reader.
type Timers map[string]int64

// Encode renders t as a flat comma-separated sequence of alternating
// queue name / unlock-at-ms tokens, dropping entries whose deadline has
// already passed relative to nowMS. An empty-but-present value and an
// absent key are treated identically by Decode, so callers should delete
// the client's store entry rather than write an empty result.
func Encode(t Timers, nowMS int64) string {
	var b strings.Builder
	first := true
	for queue, unlockAt := range t {
		if unlockAt <= nowMS {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(queue)
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(unlockAt, 10))
	}
	return b.String()
}

// Decode parses the codec string produced by Encode, tolerating missing
// or zero-valued tokens and dropping any entry whose unlock-at is
// already <= nowMS.
func Decode(s string, nowMS int64) Timers {
	t := Timers{}
	if s == "" {
		return t
	}
	tokens := strings.Split(s, ",")
	for i := 0; i+1 < len(tokens); i += 2 {
		queue := tokens[i]
		if queue == "" {
			continue
		}
		unlockAt, err := strconv.ParseInt(tokens[i+1], 10, 64)
		if err != nil || unlockAt <= nowMS {
			continue
		}
		t[queue] = unlockAt
	}
	return t
}
