package multiscan

import (
	"github.com/samber/lo"

	"go.viam.com/volumescan/material"
)

// Angle is one required viewing direction.
type Angle string

// Viewing angles.
const (
	AngleTop          Angle = "top"
	AngleFront        Angle = "front"
	AngleSide         Angle = "side"
	AngleFrontOblique Angle = "front_oblique"
	AngleSideOblique  Angle = "side_oblique"
)

var angleLabels = map[Angle]string{
	AngleTop:          "directly above",
	AngleFront:        "front, eye level",
	AngleSide:         "side, eye level",
	AngleFrontOblique: "45° from the front",
	AngleSideOblique:  "45° from the side",
}

// Label is the operator-facing description of the angle.
func (a Angle) Label() string {
	if label, ok := angleLabels[a]; ok {
		return label
	}
	return string(a)
}

var (
	powderAngles    = []Angle{AngleTop, AngleFrontOblique, AngleSideOblique, AngleFront}
	solidAngles     = []Angle{AngleTop, AngleFront, AngleSide}
	irregularAngles = []Angle{AngleTop, AngleFront, AngleSide, AngleFrontOblique, AngleSideOblique}
)

// RequiredAngles returns the ordered viewing angles a category needs.
func RequiredAngles(c material.Category) []Angle {
	var angles []Angle
	switch {
	case c.PowderLike():
		angles = powderAngles
	case c == material.CategoryIrregular:
		angles = irregularAngles
	default:
		angles = solidAngles
	}
	return append([]Angle(nil), angles...)
}

// Labels maps angles to their labels.
func Labels(angles []Angle) []string {
	return lo.Map(angles, func(a Angle, _ int) string { return a.Label() })
}
