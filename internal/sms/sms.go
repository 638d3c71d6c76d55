// Package sms groups decoded PDU records into the user-visible messages a
// Sink actually delivers, reassembling multi-part concatenated SMS along
// the way.
package sms

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kogeler/smsbridge/internal/pdu"
)

// Record is a user-visible message, the output of BuildList.
type Record struct {
	FromNumber string
	Timestamp  string
	Message    string
}

const missingPartPlaceholder = "[missing part]"

const timestampLayout = "2006-01-02 15:04:05"

// BuildList partitions decoded PDU records by presence of a concatenation
// UDH element, reassembles each concatenated group in seq order, and
// returns one Record per group plus one Record per standalone PDU.
//
// A record carrying a UDH with no concatenation element (port-addressing
// only, for example) is treated as standalone, same as one with no UDH
// at all.
func BuildList(records []pdu.Record) []Record {
	type group struct {
		key      pdu.ConcatKey
		sender   string
		segments map[int]pdu.Record
	}
	groups := make(map[string]*group)
	var order []string
	var out []Record

	for _, rec := range records {
		key, ok := pdu.ConcatInfo(rec.UDH)
		if !ok {
			out = append(out, Record{
				FromNumber: rec.Sender,
				Timestamp:  rec.Timestamp.Format(timestampLayout),
				Message:    rec.Body,
			})
			continue
		}
		gkey := rec.Sender + "|" + strconv.Itoa(key.Reference) + "|" + strconv.Itoa(key.Total)
		g, exists := groups[gkey]
		if !exists {
			g = &group{key: key, sender: rec.Sender, segments: make(map[int]pdu.Record)}
			groups[gkey] = g
			order = append(order, gkey)
		}
		g.segments[key.Seq] = rec
	}

	for _, gkey := range order {
		g := groups[gkey]
		out = append(out, assembleGroup(g.sender, g.key.Total, g.segments))
	}

	return out
}

func assembleGroup(sender string, total int, segments map[int]pdu.Record) Record {
	seqs := make([]int, 0, len(segments))
	for seq := range segments {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	var b strings.Builder
	for seq := 1; seq <= total; seq++ {
		if seg, ok := segments[seq]; ok {
			b.WriteString(seg.Body)
		} else {
			b.WriteString(missingPartPlaceholder)
		}
	}

	lastSeq := seqs[len(seqs)-1]
	last := segments[lastSeq]

	return Record{
		FromNumber: last.Sender,
		Timestamp:  last.Timestamp.Format(timestampLayout),
		Message:    b.String(),
	}
}
