// Package store persists calibration results to a checksummed JSON record.
//
// A record that is missing, empty or fails its checksum is never used: the
// store falls back to identity corrections (scale 1, offset 0) for every
// quantity and reports itself as not calibrated.
package store

import (
	"encoding/json"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/calibration"
)

// Entry is the stored correction of one quantity.
type Entry struct {
	calibration.Result
	CalibratedAt time.Time `json:"calibratedAt,omitempty"`
}

// Calibrated reports whether the entry was ever saved.
func (e Entry) Calibrated() bool {
	return !e.CalibratedAt.IsZero()
}

// Record is the persisted form of both corrections.
type Record struct {
	Voltage Entry `json:"voltage"`
	Current Entry `json:"current"`
	// Checksum is the CRC-32 (IEEE) of the JSON encoding of the record with
	// this field set to zero.
	Checksum uint32 `json:"checksum"`
}

// Get returns the entry of q.
func (r Record) Get(q calibration.Quantity) Entry {
	if q == calibration.Voltage {
		return r.Voltage
	}
	return r.Current
}

func (r *Record) set(q calibration.Quantity, e Entry) {
	if q == calibration.Voltage {
		r.Voltage = e
	} else {
		r.Current = e
	}
}

func (r Record) checksum() (uint32, error) {
	r.Checksum = 0
	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}
	return crc32.ChecksumIEEE(b), nil
}

func defaultRecord() Record {
	return Record{
		Voltage: Entry{Result: calibration.Identity},
		Current: Entry{Result: calibration.Identity},
	}
}

var _ calibration.Store = &File{}

// File is a Store backed by a JSON file.
type File struct {
	path string
	now  func() time.Time

	mu       sync.RWMutex
	record   Record
	recalled bool
	valid    bool
}

// NewFile creates a store at path and recalls whatever is stored there.
// A missing or corrupt record is not an error.
func NewFile(path string) (*File, error) {
	f := &File{
		path:   path,
		now:    time.Now,
		record: defaultRecord(),
	}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load recalls the record from disk. Only I/O errors other than a missing
// file are returned.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	log := logrus.WithField("path", f.path)

	f.recalled = true
	f.valid = false
	f.record = defaultRecord()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no calibration record found, using identity corrections")
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read calibration record %s", f.path)
	}
	if strings.TrimSpace(string(b)) == "" {
		log.Info("calibration record is empty, using identity corrections")
		return nil
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		log.WithError(err).Warn("calibration record is malformed, using identity corrections")
		return nil
	}
	sum, err := rec.checksum()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to compute checksum")
	}
	if sum != rec.Checksum {
		log.WithFields(logrus.Fields{
			"stored":   rec.Checksum,
			"computed": sum,
		}).Warn("calibration record checksum mismatch, using identity corrections")
		return nil
	}
	if !rec.Voltage.Valid() || !rec.Current.Valid() {
		log.Warn("calibration record holds unusable coefficients, using identity corrections")
		return nil
	}

	f.record = rec
	f.valid = true
	log.WithFields(logrus.Fields{
		"voltageScale":  rec.Voltage.Scale,
		"voltageOffset": rec.Voltage.Offset,
		"currentScale":  rec.Current.Scale,
		"currentOffset": rec.Current.Offset,
	}).Info("calibration record recalled")

	return nil
}

// Save replaces the correction of q and rewrites the record. The other
// quantity keeps its stored value.
func (f *File) Save(q calibration.Quantity, r calibration.Result) error {
	if !r.Valid() {
		return pkgerrors.Errorf("refusing to store unusable %s correction %+v", q, r)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.record
	rec.set(q, Entry{Result: r, CalibratedAt: f.now()})
	sum, err := rec.checksum()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to compute checksum")
	}
	rec.Checksum = sum

	if err := writeFile(f.path, rec); err != nil {
		return err
	}

	f.record = rec
	f.recalled = true
	f.valid = true

	logrus.WithFields(logrus.Fields{
		"quantity": q,
		"scale":    r.Scale,
		"offset":   r.Offset,
		"path":     f.path,
	}).Info("calibration result saved")

	return nil
}

// Calibrated reports whether a valid stored record is in use and every
// quantity in it has been calibrated.
func (f *File) Calibrated() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.recalled || !f.valid {
		return false
	}
	for _, q := range calibration.Quantities {
		if !f.record.Get(q).Calibrated() {
			return false
		}
	}
	return true
}

// CalibratedFor reports whether the stored correction of q comes from a
// calibration run rather than the identity default.
func (f *File) CalibratedFor(q calibration.Quantity) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.recalled && f.valid && f.record.Get(q).Calibrated()
}

// Record returns the record in use, which is the default record when
// Calibrated is false.
func (f *File) Record() Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.record
}

// Correct applies the stored correction of q to raw.
func (f *File) Correct(q calibration.Quantity, raw float64) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.record.Get(q).Correct(raw)
}

// writeFile replaces path atomically through a temporary file.
func writeFile(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", path)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal calibration record")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return pkgerrors.Wrapf(err, "failed to rename %s to %s", tmp, path)
	}
	return nil
}
