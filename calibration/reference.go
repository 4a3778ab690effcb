package calibration

import (
	"bytes"
	_ "embed"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/volumescan/utils"
)

// ReferenceObject is an object of known size used for calibration.
type ReferenceObject struct {
	ID       string  `yaml:"id" json:"id"`
	Name     string  `yaml:"name" json:"name"`
	LengthCM float64 `yaml:"length_cm" json:"length_cm"`
	// ThicknessCM and VolumeCM3 are optional.
	ThicknessCM *float64 `yaml:"thickness_cm,omitempty" json:"thickness_cm,omitempty"`
	VolumeCM3   *float64 `yaml:"volume_cm3,omitempty" json:"volume_cm3,omitempty"`
}

//go:embed references.yaml
var defaultReferences []byte

type referenceFile struct {
	References []ReferenceObject `yaml:"references"`
}

// LoadReferences parses a YAML reference table with a top-level "references" list.
func LoadReferences(r io.Reader) ([]ReferenceObject, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file referenceFile
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "parsing reference objects")
	}
	seen := map[string]bool{}
	for i, ref := range file.References {
		if ref.ID == "" {
			return nil, errors.Errorf("reference %d: id is required", i)
		}
		if seen[ref.ID] {
			return nil, errors.Errorf("reference %q: duplicate id", ref.ID)
		}
		seen[ref.ID] = true
		if !utils.IsFinite(ref.LengthCM) || ref.LengthCM <= 0 {
			return nil, errors.Errorf("reference %q: length_cm must be positive", ref.ID)
		}
		if ref.VolumeCM3 != nil && (!utils.IsFinite(*ref.VolumeCM3) || *ref.VolumeCM3 <= 0) {
			return nil, errors.Errorf("reference %q: volume_cm3 must be positive", ref.ID)
		}
	}
	return file.References, nil
}

// DefaultReferences returns the built-in reference objects.
func DefaultReferences() ([]ReferenceObject, error) {
	return LoadReferences(bytes.NewReader(defaultReferences))
}

func findReference(refs []ReferenceObject, id string) (ReferenceObject, bool) {
	for _, ref := range refs {
		if ref.ID == id {
			return ref, true
		}
	}
	return ReferenceObject{}, false
}
