package ir

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Domain prefixes for hashed identity.
// Version suffix enables future algorithm migration.
const (
	DomainKey   = "relq/key/v1"
	DomainAlias = "relq/alias/v1"
)

// HashWithDomain computes a 32-bit murmur3 hash with domain separation.
// Format: murmur3(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) uint32 {
	h := murmur3.New32()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum32()
}

// Key element tags.
const (
	tagBool   byte = 'b'
	tagInt    byte = 'i'
	tagString byte = 's'
)

// KeyEncoding returns the byte-exact encoding of a primary-key tuple scoped
// to an entity type: the entity, a zero byte, then per element a type tag
// and its raw value (big-endian int64, one byte per bool, length-prefixed
// string bytes). Two tuples from the same entity encode identically iff
// they are element-wise equal byte for byte. Strings are not normalized.
// NULL and non-scalar elements are rejected.
func KeyEncoding(entity string, values IRArray) ([]byte, error) {
	out := make([]byte, 0, len(entity)+1+9*len(values))
	out = append(out, entity...)
	out = append(out, 0x00)
	for i, v := range values {
		switch val := v.(type) {
		case IRBool:
			b := byte(0)
			if val {
				b = 1
			}
			out = append(out, tagBool, b)
		case IRInt:
			out = append(out, tagInt)
			out = binary.BigEndian.AppendUint64(out, uint64(val))
		case IRString:
			out = append(out, tagString)
			out = binary.AppendUvarint(out, uint64(len(val)))
			out = append(out, val...)
		case nil, IRNull:
			return nil, fmt.Errorf("key element %d is null", i)
		default:
			return nil, fmt.Errorf("key element %d has non-scalar type %T", i, v)
		}
	}
	return out, nil
}
