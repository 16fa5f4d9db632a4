package bufferpool

import (
	"os"

	"github.com/featurebasedb/stratum/errors"
)

// OnDiskDiskManager is a DiskManager implementation backed by a single file.
type OnDiskDiskManager struct {
	path string
	fd   *os.File

	numPages int
}

// NewOnDiskDiskManager opens (or creates) the file at path and returns a
// disk manager over it.
func NewOnDiskDiskManager(path string) (*OnDiskDiskManager, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening data file")
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, errors.Wrap(err, "stat data file")
	}
	return &OnDiskDiskManager{
		path:     path,
		fd:       fd,
		numPages: int(fi.Size() / PAGE_SIZE),
	}, nil
}

// ReadPage reads a page from the file. Pages beyond the end of the file read
// back as zeroes.
func (d *OnDiskDiskManager) ReadPage(pageID PageID, page *Page) error {
	if pageID < 0 {
		return errors.Errorf("page %d not found", pageID)
	}
	buf := page.Data()
	if int(pageID) >= d.numPages {
		*buf = [PAGE_SIZE]byte{}
		return nil
	}
	offset := int64(pageID) * PAGE_SIZE
	if _, err := d.fd.ReadAt(buf[:], offset); err != nil {
		return errors.Wrapf(err, "reading page %d", pageID)
	}
	return nil
}

// WritePage writes a page to the file, extending it as needed.
func (d *OnDiskDiskManager) WritePage(page *Page) error {
	if page.ID() < 0 {
		return errors.Errorf("invalid page %d", page.ID())
	}
	offset := int64(page.ID()) * PAGE_SIZE
	buf := page.Data()
	if _, err := d.fd.WriteAt(buf[:], offset); err != nil {
		return errors.Wrapf(err, "writing page %d", page.ID())
	}
	if int(page.ID()) >= d.numPages {
		d.numPages = int(page.ID()) + 1
	}
	return nil
}

func (d *OnDiskDiskManager) FileSize() int64 {
	fi, err := d.fd.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (d *OnDiskDiskManager) Close() {
	_ = d.fd.Sync()
	_ = d.fd.Close()
}
