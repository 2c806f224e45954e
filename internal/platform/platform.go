package platform

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"time"
)

// DevIno uniquely identifies an inode for hardlink detection.
type DevIno struct {
	Dev uint64
	Ino uint64
}

// Bytes returns the 16-byte little-endian encoding used as an index key.
func (d DevIno) Bytes() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b, d.Dev)
	binary.LittleEndian.PutUint64(b[8:], d.Ino)
	return b
}

func (d DevIno) String() string {
	return fmt.Sprintf("dev=%x ino=%d", d.Dev, d.Ino)
}

// Meta is a snapshot of the filesystem metadata of one path.
type Meta struct {
	ModTime time.Time
	DevIno  DevIno
	Size    int64
	Nlink   uint64
	Mode    uint32
	UID     uint32
	GID     uint32
}

// IsRegular reports whether the snapshot describes a regular file.
func (m Meta) IsRegular() bool {
	return os.FileMode(m.Mode).IsRegular()
}

// Lstat snapshots path without following a trailing symlink.
func Lstat(path string) (Meta, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Meta{}, err
	}
	return MetaFromInfo(path, info)
}

// MetaFromInfo converts an os.FileInfo obtained from Lstat or Stat.
func MetaFromInfo(path string, info os.FileInfo) (Meta, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Meta{}, fmt.Errorf("unsupported stat type for %s", path)
	}
	return Meta{
		ModTime: info.ModTime(),
		DevIno:  DevIno{Dev: devFromStat(stat), Ino: stat.Ino},
		Size:    info.Size(),
		Nlink:   uint64(stat.Nlink),
		Mode:    uint32(info.Mode()),
		UID:     stat.Uid,
		GID:     stat.Gid,
	}, nil
}
