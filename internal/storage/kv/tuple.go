package kv

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/storekit/storekit/internal/storage"
)

// Component tags. Their order fixes the cross-type order of components:
// strings sort before integers, integers before booleans.
const (
	tagString byte = 0x02
	tagInt    byte = 0x03
	tagFalse  byte = 0x04
	tagTrue   byte = 0x05
)

// encodeKey turns a validated key into an engine key whose byte order is the
// key order. Every component is self-delimiting, so the encoding of a prefix
// is a byte prefix of the encoding of each descendant.
func encodeKey(key storage.Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range key {
		v, _ := storage.NormalizePart(p)
		switch v := v.(type) {
		case string:
			b.WriteByte(tagString)
			b.WriteString(v)
			b.WriteByte(0x00)
		case int64:
			var buf [8]byte
			// Flipping the sign bit orders negative numbers first.
			binary.BigEndian.PutUint64(buf[:], uint64(v)^(1<<63))
			b.WriteByte(tagInt)
			b.Write(buf[:])
		case bool:
			if v {
				b.WriteByte(tagTrue)
			} else {
				b.WriteByte(tagFalse)
			}
		}
	}
	return b.String(), nil
}

// decodeKey reverses encodeKey.
func decodeKey(s string) (storage.Key, error) {
	key := storage.Key{}
	for i := 0; i < len(s); {
		switch s[i] {
		case tagString:
			end := strings.IndexByte(s[i+1:], 0x00)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string component at offset %d", i)
			}
			key = append(key, s[i+1:i+1+end])
			i += end + 2
		case tagInt:
			if i+9 > len(s) {
				return nil, fmt.Errorf("truncated integer component at offset %d", i)
			}
			n := int64(binary.BigEndian.Uint64([]byte(s[i+1:i+9])) ^ (1 << 63))
			key = append(key, int(n))
			i += 9
		case tagFalse:
			key = append(key, false)
			i++
		case tagTrue:
			key = append(key, true)
			i++
		default:
			return nil, fmt.Errorf("unknown component tag 0x%02x at offset %d", s[i], i)
		}
	}
	return key, nil
}
