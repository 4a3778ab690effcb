package calibration

import (
	"context"
	"sync"
	"time"
)

// Record is the persisted form of a Store.
type Record struct {
	ScaleFactor     *float64   `json:"scale_factor,omitempty"`
	Calibrated      bool       `json:"is_calibrated"`
	CalibrationDate *time.Time `json:"calibration_date,omitempty"`
	ReferenceObject *string    `json:"reference_object,omitempty"`
	Accuracy        float64    `json:"accuracy"`
	Enhanced        *Enhanced  `json:"enhanced_calibration,omitempty"`
}

// A Persister loads and saves calibration records. Load reports false when nothing has been
// saved yet.
type Persister interface {
	Load(ctx context.Context) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
}

func recordFromState(st State, enhanced *Enhanced) Record {
	rec := Record{Calibrated: st.Calibrated, Accuracy: st.AccuracyPercent}
	if st.Calibrated {
		scale := st.ScaleFactor
		rec.ScaleFactor = &scale
		at := st.CalibratedAt
		rec.CalibrationDate = &at
	}
	if st.ReferenceID != "" {
		ref := st.ReferenceID
		rec.ReferenceObject = &ref
	}
	if enhanced != nil {
		e := *enhanced
		e.DepthBiasCoefficients = append([]float64(nil), enhanced.DepthBiasCoefficients...)
		rec.Enhanced = &e
	}
	return rec
}

// toState rebuilds a state from a record. Missing or unusable values fall back to the
// uncalibrated defaults.
func (rec Record) toState() (State, *Enhanced) {
	st := uncalibrated()
	if rec.ScaleFactor != nil && *rec.ScaleFactor > 0 {
		st.ScaleFactor = *rec.ScaleFactor
		st.Calibrated = rec.Calibrated
	}
	st.AccuracyPercent = rec.Accuracy
	if rec.CalibrationDate != nil {
		st.CalibratedAt = *rec.CalibrationDate
	}
	if rec.ReferenceObject != nil {
		st.ReferenceID = *rec.ReferenceObject
	}
	var enhanced *Enhanced
	if rec.Enhanced != nil {
		e := *rec.Enhanced
		enhanced = &e
		st.DepthBias = append([]float64(nil), e.DepthBiasCoefficients...)
	}
	return st, enhanced
}

// MemoryPersister keeps a record in memory.
type MemoryPersister struct {
	mu    sync.Mutex
	rec   Record
	saved bool
}

// Load returns the last saved record.
func (m *MemoryPersister) Load(ctx context.Context) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, m.saved, nil
}

// Save replaces the stored record.
func (m *MemoryPersister) Save(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec
	m.saved = true
	return nil
}
