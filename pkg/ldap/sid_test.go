package ldap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sidBytes(revision byte, authority uint64, subs ...uint32) []byte {
	b := []byte{revision, byte(len(subs))}
	auth := make([]byte, 8)
	binary.BigEndian.PutUint64(auth, authority)
	b = append(b, auth[2:]...)
	for _, sub := range subs {
		s := make([]byte, 4)
		binary.LittleEndian.PutUint32(s, sub)
		b = append(b, s...)
	}
	return b
}

func TestSIDFromBytes(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{
			name: "domain user sid",
			in:   sidBytes(1, 5, 21, 1, 2, 3, 1001),
			want: "S-1-5-21-1-2-3-1001",
		},
		{
			name: "builtin users",
			in:   sidBytes(1, 5, 32, 545),
			want: "S-1-5-32-545",
		},
		{
			name: "everyone",
			in:   sidBytes(1, 1, 0),
			want: "S-1-1-0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SIDFromBytes(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSIDFromBytesErrors(t *testing.T) {
	_, err := SIDFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)

	// claims 4 sub-authorities but carries only one
	short := sidBytes(1, 5, 21)
	short[1] = 4
	_, err = SIDFromBytes(short)
	assert.Error(t, err)
}

func TestGUIDFromBytes(t *testing.T) {
	// AD byte order for 01020304-0506-0708-090a-0b0c0d0e0f10
	raw := []byte{
		0x04, 0x03, 0x02, 0x01,
		0x06, 0x05,
		0x08, 0x07,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}
	got, err := GUIDFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", got)

	_, err = GUIDFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
