package hal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sector(b byte) []byte { return bytes.Repeat([]byte{b}, DiskSectorSize) }

func TestDiskDeviceMemory(t *testing.T) {
	d, err := newDiskDevice(nil, 0, 4, "", 0)
	require.NoError(t, err)

	req := &DeviceRequest{Op: OpDiskTracks}
	require.Equal(t, DevOK, d.do(req))
	require.Equal(t, 4, req.Reg1)

	require.Equal(t, DevError, d.do(&DeviceRequest{Op: OpDiskSeek, Reg1: 4}))
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskSeek, Reg1: 3}))
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskWrite, Reg1: 15, Buf: sector('x')}))
	require.Equal(t, DevError, d.do(&DeviceRequest{Op: OpDiskWrite, Reg1: 16, Buf: sector('x')}))
	require.Equal(t, DevError, d.do(&DeviceRequest{Op: OpDiskRead, Reg1: 0, Buf: make([]byte, 10)}))

	got := make([]byte, DiskSectorSize)
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskRead, Reg1: 15, Buf: got}))
	require.Equal(t, sector('x'), got)

	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskSeek, Reg1: 0}))
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskRead, Reg1: 15, Buf: got}))
	require.Equal(t, sector(0), got)

	require.NoError(t, d.close())
	require.ErrorIs(t, d.close(), ErrDiskClosed)
}

func TestDiskDeviceFile(t *testing.T) {
	dir := t.TempDir()

	d, err := newDiskDevice(nil, 1, 2, dir, 0)
	require.NoError(t, err)
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskSeek, Reg1: 1}))
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskWrite, Reg1: 2, Buf: sector('k')}))
	require.NoError(t, d.close())

	st, err := os.Stat(filepath.Join(dir, "disk1"))
	require.NoError(t, err)
	require.Equal(t, int64(2*diskTrackBytes), st.Size())

	// The existing file wins over the configured track count.
	d, err = newDiskDevice(nil, 1, 8, dir, 0)
	require.NoError(t, err)
	defer d.close()
	require.Equal(t, 2, d.tracks)

	got := make([]byte, DiskSectorSize)
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskSeek, Reg1: 1}))
	require.Equal(t, DevOK, d.do(&DeviceRequest{Op: OpDiskRead, Reg1: 2, Buf: got}))
	require.Equal(t, sector('k'), got)
}
