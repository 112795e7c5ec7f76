package spill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/grackle/pkg/types"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "sd_20240102_150405.gzip", FileName(KindSD, ts))
	assert.Equal(t, "token_20240102_150405.gzip", FileName(KindToken, ts))
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, KindToken)
	require.NoError(t, err)

	want := []types.TokenGroup{
		{ADID: 1, GUID: "guid-1", SID: "S-1-5-21-1-2-3-1001", ObjectType: types.ObjectKindUser, MemberSID: "S-1-5-21-1-2-3-513"},
		{ADID: 1, GUID: "guid-2", SID: "S-1-5-21-1-2-3-1002", ObjectType: types.ObjectKindMachine, MemberSID: "S-1-5-21-1-2-3-515"},
		{ADID: 1, GUID: "guid-3", SID: "S-1-5-21-1-2-3-1003", ObjectType: types.ObjectKindGroup, MemberSID: "S-1-5-21-1-2-3-512"},
	}
	for i := range want {
		require.NoError(t, w.Write(&want[i]))
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(w.Path())
	require.NoError(t, err)
	defer r.Close()

	var got []types.TokenGroup
	for {
		var tg types.TokenGroup
		ok, err := r.Next(&tg)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, tg)
	}
	assert.Equal(t, want, got)
}

func TestReadEmptyFile(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, KindSD)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(w.Path())
	require.NoError(t, err)
	defer r.Close()

	var sd types.SDBinding
	ok, err := r.Next(&sd)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLargeRecord(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, KindSD)
	require.NoError(t, err)

	// base64 of a large descriptor easily exceeds the default scanner token size
	big := make([]byte, 200*1024)
	for i := range big {
		big[i] = 'A'
	}
	in := types.SDBinding{ADID: 7, GUID: "guid-big", SD: string(big), SDHash: "deadbeef"}
	require.NoError(t, w.Write(&in))
	require.NoError(t, w.Close())

	r, err := OpenReader(w.Path())
	require.NoError(t, err)
	defer r.Close()

	var out types.SDBinding
	ok, err := r.Next(&out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}
