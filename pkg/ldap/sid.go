package ldap

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SIDFromBytes decodes a binary SECURITY_IDENTIFIER into its S-1-... string
// form. Layout: revision (1 byte), sub-authority count (1 byte), identifier
// authority (6 bytes big-endian), sub-authorities (4 bytes little-endian
// each).
func SIDFromBytes(b []byte) (string, error) {
	if len(b) < 8 {
		return "", fmt.Errorf("sid too short: %d bytes", len(b))
	}
	revision := b[0]
	subCount := int(b[1])
	if len(b) < 8+subCount*4 {
		return "", fmt.Errorf("sid truncated: %d sub-authorities in %d bytes", subCount, len(b))
	}

	authority := uint64(0)
	for _, v := range b[2:8] {
		authority = authority<<8 | uint64(v)
	}

	var sb strings.Builder
	sb.WriteString("S-")
	sb.WriteString(strconv.Itoa(int(revision)))
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatUint(authority, 10))
	for i := 0; i < subCount; i++ {
		sub := binary.LittleEndian.Uint32(b[8+i*4:])
		sb.WriteByte('-')
		sb.WriteString(strconv.FormatUint(uint64(sub), 10))
	}
	return sb.String(), nil
}

// GUIDFromBytes decodes a binary objectGUID into its canonical string form.
// AD stores the first three fields little-endian, unlike RFC 4122, so the
// bytes are swapped before handing them to the uuid package.
func GUIDFromBytes(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("guid must be 16 bytes, got %d", len(b))
	}
	var swapped [16]byte
	copy(swapped[:], b)
	swapped[0], swapped[1], swapped[2], swapped[3] = b[3], b[2], b[1], b[0]
	swapped[4], swapped[5] = b[5], b[4]
	swapped[6], swapped[7] = b[7], b[6]

	id, err := uuid.FromBytes(swapped[:])
	if err != nil {
		return "", fmt.Errorf("failed to decode guid: %w", err)
	}
	return id.String(), nil
}
