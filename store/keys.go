package store

import (
	"fmt"
	"strconv"

	"github.com/najoast/courier/comms"
)

const (
	// notation for key formats:
	// rec = record body, idx = index, snd = sender, rcv = receiver
	// All segments are separated by ":"; <...> is a variable segment.

	RecordKey   = "rec:%020d"           // rec:<seq>
	SentKey     = "idx:%s:snd:%s:%020d" // idx:<kind>:snd:<actor_key>:<seq>
	ReceivedKey = "idx:%s:rcv:%s:%020d" // idx:<kind>:rcv:<actor_key>:<seq>

	SentPrefix     = "idx:%s:snd:%s:" // idx:<kind>:snd:<actor_key>:
	ReceivedPrefix = "idx:%s:rcv:%s:" // idx:<kind>:rcv:<actor_key>:

	SeqKey = "meta:seq"

	seqWidth = 20
)

func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf(RecordKey, seq))
}

func sentKey(kind comms.Kind, actor string, seq uint64) []byte {
	return []byte(fmt.Sprintf(SentKey, kind, actor, seq))
}

func receivedKey(kind comms.Kind, actor string, seq uint64) []byte {
	return []byte(fmt.Sprintf(ReceivedKey, kind, actor, seq))
}

func sentPrefix(kind comms.Kind, actor string) []byte {
	return []byte(fmt.Sprintf(SentPrefix, kind, actor))
}

func receivedPrefix(kind comms.Kind, actor string) []byte {
	return []byte(fmt.Sprintf(ReceivedPrefix, kind, actor))
}

// seqFromIndexKey reads the trailing padded sequence of an index key.
func seqFromIndexKey(key []byte) (uint64, error) {
	if len(key) < seqWidth {
		return 0, fmt.Errorf("index key %q too short", key)
	}
	return strconv.ParseUint(string(key[len(key)-seqWidth:]), 10, 64)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
