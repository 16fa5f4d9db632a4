package bufferpool

import (
	"fmt"
	"os"

	"github.com/featurebasedb/stratum/errors"
	uuid "github.com/satori/go.uuid"
)

// InMemDiskSpillingDiskManager is a memory implementation for a DiskManager
// interface that can spill to disk when a threshold is reached
type InMemDiskSpillingDiskManager struct {
	// tracks the number of pages
	numPages int

	onDiskPages int

	// tracks the number of pages we can consume before spilling
	thresholdPages int
	hasSpilled     bool
	fd             *os.File

	// the data buffer
	data []byte
}

// NewInMemDiskSpillingDiskManager returns a in-memory version of disk manager
func NewInMemDiskSpillingDiskManager(thresholdPages int) *InMemDiskSpillingDiskManager {
	dm := &InMemDiskSpillingDiskManager{
		numPages:       0,
		thresholdPages: thresholdPages,
		data:           make([]byte, 0),
	}
	return dm
}

// ReadPage reads a page from pages. Pages that were never written read back
// as zeroes; the pool relies on that for clean re-fetches of fresh pages.
func (d *InMemDiskSpillingDiskManager) ReadPage(pageID PageID, page *Page) error {
	if pageID < 0 {
		return errors.Errorf("page %d not found", pageID)
	}
	offset := int(pageID) * PAGE_SIZE

	buf := page.Data()
	if offset+PAGE_SIZE > d.numPages*PAGE_SIZE {
		// never written
		*buf = [PAGE_SIZE]byte{}
		return nil
	}

	if !d.hasSpilled {
		copy(buf[:], d.data[offset:offset+PAGE_SIZE])
	} else {
		if _, err := d.fd.ReadAt(buf[:], int64(offset)); err != nil {
			return err
		}
	}
	return nil
}

// WritePage writes a page in memory to pages, growing the backing store as
// needed and spilling to a temp file past the threshold.
func (d *InMemDiskSpillingDiskManager) WritePage(page *Page) error {
	if page.ID() < 0 {
		return errors.Errorf("invalid page %d", page.ID())
	}
	offset := int(page.ID()) * PAGE_SIZE

	if err := d.grow(int(page.ID()) + 1); err != nil {
		return err
	}

	buf := page.Data()
	if !d.hasSpilled {
		copy(d.data[offset:], buf[:])
	} else {
		if _, err := d.fd.WriteAt(buf[:], int64(offset)); err != nil {
			return err
		}
	}
	return nil
}

// grow makes sure there is backing storage for at least numPages pages.
func (d *InMemDiskSpillingDiskManager) grow(numPages int) error {
	if numPages <= d.numPages {
		return nil
	}
	d.numPages = numPages

	if !d.hasSpilled {
		for len(d.data) < d.numPages*PAGE_SIZE {
			newData := make([]byte, PAGE_SIZE)
			d.data = append(d.data, newData...)
		}
		// check to see if we need to spill
		if d.numPages > d.thresholdPages {
			fileUUID, err := uuid.NewV4()
			if err != nil {
				return err
			}
			// TODO(pok) we should try to tell the OS not to cache this file
			d.fd, err = os.CreateTemp("", fmt.Sprintf("stratum-pool-%s", fileUUID.String()))
			if err != nil {
				return err
			}
			_, err = d.fd.WriteAt(d.data, 0)
			if err != nil {
				return err
			}
			d.data = []byte{}
			d.hasSpilled = true
			d.onDiskPages = d.numPages
		}
	} else {
		if d.numPages > d.onDiskPages {
			// grow the file by a chunk - 512 pages
			d.onDiskPages += 512
			size := int64(d.onDiskPages * PAGE_SIZE)
			if _, err := d.fd.WriteAt([]byte{0}, size-1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *InMemDiskSpillingDiskManager) FileSize() int64 {
	if d.hasSpilled {
		return int64(d.onDiskPages * PAGE_SIZE)
	}
	return int64(len(d.data))
}

func (d *InMemDiskSpillingDiskManager) Close() {
	// close and delete the file if we spilled
	if d.fd != nil {
		_ = d.fd.Close()
		os.Remove(d.fd.Name())
	}
}
