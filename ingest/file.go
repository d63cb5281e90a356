package ingest

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapFile memory-maps path read-only and yields one partition's lines,
// mirroring persistent/file.go and alloc/state.go's unix.Mmap idiom for
// treating a file as a flat byte buffer instead of streaming reads.
type mmapFile struct {
	data []byte
	pos  int64
	end  int64
}

// openMmapPartition mmaps path and computes this rank's aligned partition
// window over the bytes starting at headerBytes (0 for formats with no
// leading header to skip, past the dims line for Matrix Market).
func openMmapPartition(path string, nRanks, rank uint32, headerBytes int64) (*mmapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	size := info.Size()

	var data []byte
	if size > 0 {
		data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, errors.Wrapf(err, "mmap %s", path)
		}
	}

	body := data[headerBytes:]
	offset, length, err := Partition(int64(len(body)), nRanks, rank)
	if err != nil {
		return nil, err
	}
	start, end := alignToLineStart(body, offset, length, rank)

	return &mmapFile{data: data, pos: headerBytes + start, end: headerBytes + end}, nil
}

// nextLine returns the next line starting in [pos, end), advancing pos past
// it, or ok=false at the partition's end. A line that starts before end is
// read through to its terminator even if that lies past end. The trailing
// newline is stripped.
func (m *mmapFile) nextLine() (line []byte, ok bool) {
	if m.pos >= m.end || m.pos >= int64(len(m.data)) {
		return nil, false
	}

	window := m.data[m.pos:]
	nl := bytes.IndexByte(window, '\n')
	if nl < 0 {
		line = window
		m.pos = int64(len(m.data))
	} else {
		line = window[:nl]
		m.pos += int64(nl) + 1
	}

	line = bytes.TrimRight(line, "\r")
	return line, true
}

func (m *mmapFile) Close() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}
