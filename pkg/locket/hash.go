package locket

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/i5heu/ouroboros-locket/pkg/pancake"
)

// type tags of the canonical encoding
const (
	tagNull   = 'n'
	tagFalse  = 'F'
	tagTrue   = 'T'
	tagInt    = 'i'
	tagUint   = 'u'
	tagFloat  = 'f'
	tagString = 's'
	tagBlob   = 'x'
	tagDate   = 'd'
	tagRegex  = 'r'
	tagMap    = 'm'
	tagList   = 'l'
	tagOther  = '?'
)

// HashContent computes the structural SHA-512 hash of a serialized content.
// Equal content always hashes equally: map members are written in sorted key
// order and all integer kinds share one encoding.
func HashContent(content pancake.Pancake) Hash {
	var buffer bytes.Buffer
	writeCanonical(&buffer, []any(content))
	return sha512.Sum512(buffer.Bytes())
}

func writeCanonical(buffer *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buffer.WriteByte(tagNull)
	case bool:
		if val {
			buffer.WriteByte(tagTrue)
		} else {
			buffer.WriteByte(tagFalse)
		}

	case int:
		writeInt(buffer, int64(val))
	case int8:
		writeInt(buffer, int64(val))
	case int16:
		writeInt(buffer, int64(val))
	case int32:
		writeInt(buffer, int64(val))
	case int64:
		writeInt(buffer, val)
	case uint:
		writeUint(buffer, uint64(val))
	case uint8:
		writeUint(buffer, uint64(val))
	case uint16:
		writeUint(buffer, uint64(val))
	case uint32:
		writeUint(buffer, uint64(val))
	case uint64:
		writeUint(buffer, val)
	case float32:
		writeFloat(buffer, float64(val))
	case float64:
		writeFloat(buffer, val)

	case string:
		writeBytes(buffer, tagString, []byte(val))
	case []byte:
		writeBytes(buffer, tagBlob, val)
	case pancake.BlobWrapper:
		writeBytes(buffer, tagBlob, val.BlobBytes())
	case time.Time:
		buffer.WriteByte(tagDate)
		writeFixed(buffer, uint64(val.Unix()))
		writeFixed(buffer, uint64(val.Nanosecond()))
	case *regexp.Regexp:
		writeBytes(buffer, tagRegex, []byte(val.String()))

	case map[string]any:
		buffer.WriteByte(tagMap)
		writeFixed(buffer, uint64(len(val)))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeBytes(buffer, tagString, []byte(k))
			writeCanonical(buffer, val[k])
		}
	case pancake.Pancake:
		writeCanonical(buffer, []any(val))
	case []any:
		buffer.WriteByte(tagList)
		writeFixed(buffer, uint64(len(val)))
		for _, member := range val {
			writeCanonical(buffer, member)
		}

	default:
		writeBytes(buffer, tagOther, []byte(fmt.Sprintf("%T:%v", v, v)))
	}
}

func writeFixed(buffer *bytes.Buffer, n uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	buffer.Write(b[:])
}

func writeInt(buffer *bytes.Buffer, n int64) {
	if n >= 0 {
		writeUint(buffer, uint64(n))
		return
	}
	buffer.WriteByte(tagInt)
	writeFixed(buffer, uint64(n))
}

func writeUint(buffer *bytes.Buffer, n uint64) {
	buffer.WriteByte(tagUint)
	writeFixed(buffer, n)
}

func writeFloat(buffer *bytes.Buffer, f float64) {
	buffer.WriteByte(tagFloat)
	writeFixed(buffer, math.Float64bits(f))
}

func writeBytes(buffer *bytes.Buffer, tag byte, b []byte) {
	buffer.WriteByte(tag)
	writeFixed(buffer, uint64(len(b)))
	buffer.Write(b)
}
