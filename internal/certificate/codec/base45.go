package codec

import (
	"fmt"
	"strings"
)

const base45Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

// Base45Encode encodes data per RFC 9285.
func Base45Encode(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data)/2*3 + 2)
	for i := 0; i+1 < len(data); i += 2 {
		n := int(data[i])<<8 | int(data[i+1])
		sb.WriteByte(base45Alphabet[n%45])
		sb.WriteByte(base45Alphabet[(n/45)%45])
		sb.WriteByte(base45Alphabet[n/2025])
	}
	if len(data)%2 == 1 {
		n := int(data[len(data)-1])
		sb.WriteByte(base45Alphabet[n%45])
		sb.WriteByte(base45Alphabet[n/45])
	}
	return sb.String()
}

// Base45Decode decodes an RFC 9285 string.
func Base45Decode(s string) ([]byte, error) {
	if len(s)%3 == 1 {
		return nil, fmt.Errorf("base45: invalid length %d", len(s))
	}
	vals := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(base45Alphabet, s[i])
		if v < 0 {
			return nil, fmt.Errorf("base45: invalid character %q at %d", s[i], i)
		}
		vals[i] = v
	}
	out := make([]byte, 0, len(s)/3*2+1)
	for i := 0; i+2 < len(vals); i += 3 {
		n := vals[i] + vals[i+1]*45 + vals[i+2]*2025
		if n > 0xFFFF {
			return nil, fmt.Errorf("base45: chunk at %d out of range", i)
		}
		out = append(out, byte(n>>8), byte(n))
	}
	if rem := len(vals) % 3; rem == 2 {
		n := vals[len(vals)-2] + vals[len(vals)-1]*45
		if n > 0xFF {
			return nil, fmt.Errorf("base45: trailing chunk out of range")
		}
		out = append(out, byte(n))
	}
	return out, nil
}
