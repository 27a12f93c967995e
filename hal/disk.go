package hal

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const (
	diskTrackBytes     = DiskSectorSize * DiskTrackSize
	diskCacheSectors   = 256
	diskFilePrefix     = "disk"
	diskFileMode       = 0o644
	diskEnvDirVariable = "SIMKERN_DISK_DIR"
)

var ErrDiskClosed = errors.New("disk closed")

// sectorStore is the backing medium of a disk unit.
type sectorStore interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}

type memStore struct {
	buf []byte
}

func (m *memStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	return copy(p, m.buf[off:]), nil
}

func (m *memStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, errors.Wrapf(os.ErrInvalid, "write at %d", off)
	}
	return copy(m.buf[off:], p), nil
}

func (m *memStore) Close() error { return nil }

type diskDevice struct {
	c       *CPU
	unit    int
	tracks  int
	latency time.Duration

	mu     sync.Mutex
	busy   bool
	closed bool
	status DevStatus
	track  int
	store  sectorStore
	cache  *lru.ARCCache
}

// DiskDir returns the disk backing directory from the environment.
func DiskDir() string {
	return os.Getenv(diskEnvDirVariable)
}

func newDiskDevice(c *CPU, unit, tracks int, dir string, latency time.Duration) (*diskDevice, error) {
	cache, err := lru.NewARC(diskCacheSectors)
	if err != nil {
		return nil, errors.Wrap(err, "sector cache")
	}
	d := &diskDevice{c: c, unit: unit, tracks: tracks, latency: latency, cache: cache}

	if dir == "" {
		d.store = &memStore{buf: make([]byte, tracks*diskTrackBytes)}
		return d, nil
	}

	path := filepath.Join(dir, diskFilePrefix+strconv.Itoa(unit))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, diskFileMode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if st.Size() >= diskTrackBytes {
		d.tracks = int(st.Size() / diskTrackBytes)
	} else if err := f.Truncate(int64(tracks * diskTrackBytes)); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "size %s", path)
	}
	d.store = f
	return d, nil
}

func (d *diskDevice) output(req *DeviceRequest) DevStatus {
	switch req.Op {
	case OpDiskTracks, OpDiskSeek, OpDiskRead, OpDiskWrite:
	default:
		return DevInvalid
	}

	d.mu.Lock()
	if d.busy || d.closed {
		d.mu.Unlock()
		return DevBusy
	}
	d.busy = true
	d.mu.Unlock()

	go d.complete(req)
	return DevOK
}

func (d *diskDevice) complete(req *DeviceRequest) {
	if d.latency > 0 {
		select {
		case <-time.After(d.latency):
		case <-d.c.done:
			return
		}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.status = d.do(req)
	d.busy = false
	d.mu.Unlock()

	d.c.raise(DiskDev, d.unit)
}

func (d *diskDevice) do(req *DeviceRequest) DevStatus {
	switch req.Op {
	case OpDiskTracks:
		req.Reg1 = d.tracks
		return DevOK

	case OpDiskSeek:
		if req.Reg1 < 0 || req.Reg1 >= d.tracks {
			return DevError
		}
		d.track = req.Reg1
		return DevOK

	case OpDiskRead, OpDiskWrite:
		if req.Reg1 < 0 || req.Reg1 >= DiskTrackSize || len(req.Buf) < DiskSectorSize {
			return DevError
		}
		off := int64(d.track*diskTrackBytes + req.Reg1*DiskSectorSize)
		buf := req.Buf[:DiskSectorSize]
		if req.Op == OpDiskRead {
			return d.read(buf, off)
		}
		return d.write(buf, off)
	}
	return DevInvalid
}

func (d *diskDevice) read(buf []byte, off int64) DevStatus {
	if v, ok := d.cache.Get(off); ok {
		copy(buf, v.([]byte))
		return DevOK
	}
	if _, err := d.store.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return DevError
	}
	d.cache.Add(off, append([]byte(nil), buf...))
	return DevOK
}

func (d *diskDevice) write(buf []byte, off int64) DevStatus {
	if _, err := d.store.WriteAt(buf, off); err != nil {
		d.cache.Remove(off)
		return DevError
	}
	d.cache.Add(off, append([]byte(nil), buf...))
	return DevOK
}

func (d *diskDevice) input() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return int(DevBusy)
	}
	return int(d.status)
}

func (d *diskDevice) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDiskClosed
	}
	d.closed = true
	return d.store.Close()
}
