package plant

import (
	"errors"
	"fmt"
	"strings"
)

// Field names used by the layout tool's CSV loader.
const (
	FieldScientificName   = "scientific_name"
	FieldKrName           = "kr_name"
	FieldLifeForm         = "life_form"
	FieldMaxHeightM       = "max_height_m"
	FieldRootDepthCMRange = "root_depth_cm_range"
	FieldLightRequirement = "light_requirement_1_5"
	FieldLifespanYr       = "lifespan_yr"
)

// PlantInput is the typed shape of a plant record.
type PlantInput struct {
	ScientificName   string     `json:"scientific_name"`
	KrName           string     `json:"kr_name"`
	LifeForm         string     `json:"life_form"`
	MaxHeightM       float64    `json:"max_height_m"`
	RootDepthCMRange [2]float64 `json:"root_depth_cm_range"`
	LightRequirement int        `json:"light_requirement_1_5"`
	LifespanYr       int        `json:"lifespan_yr"`
}

// ExamplePlant is a reference record used in docs and tests.
var ExamplePlant = PlantInput{
	ScientificName:   "Pinus densiflora",
	KrName:           "소나무",
	LifeForm:         "tree",
	MaxHeightM:       35,
	RootDepthCMRange: [2]float64{30, 100},
	LightRequirement: 4,
	LifespanYr:       100,
}

// Record converts the typed input into an ordered Record.
func (p PlantInput) Record() Record {
	return NewRecord(
		F(FieldScientificName, String(p.ScientificName)),
		F(FieldKrName, String(p.KrName)),
		F(FieldLifeForm, String(p.LifeForm)),
		F(FieldMaxHeightM, Number(p.MaxHeightM)),
		F(FieldRootDepthCMRange, Range(p.RootDepthCMRange[0], p.RootDepthCMRange[1])),
		F(FieldLightRequirement, Int(int64(p.LightRequirement))),
		F(FieldLifespanYr, Int(int64(p.LifespanYr))),
	)
}

// Validate checks the documented ranges. Serialization never calls it.
func (p PlantInput) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ScientificName) == "" {
		errs = append(errs, errors.New("scientific_name is required"))
	}
	if p.MaxHeightM < 0 {
		errs = append(errs, fmt.Errorf("max_height_m must be >= 0, got %s", FormatNumber(p.MaxHeightM)))
	}
	if lo, hi := p.RootDepthCMRange[0], p.RootDepthCMRange[1]; lo > hi {
		errs = append(errs, fmt.Errorf("root_depth_cm_range low %s exceeds high %s", FormatNumber(lo), FormatNumber(hi)))
	}
	if p.LightRequirement < 1 || p.LightRequirement > 5 {
		errs = append(errs, fmt.Errorf("light_requirement_1_5 must be within 1-5, got %d", p.LightRequirement))
	}
	if p.LifespanYr < 0 {
		errs = append(errs, fmt.Errorf("lifespan_yr must be >= 0, got %d", p.LifespanYr))
	}
	return errors.Join(errs...)
}

// Records converts a list of typed inputs.
func Records(inputs []PlantInput) []Record {
	out := make([]Record, len(inputs))
	for i, p := range inputs {
		out[i] = p.Record()
	}
	return out
}
