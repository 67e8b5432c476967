package InputParameters

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML case file
type RefineCase struct {
	Title          string       `yaml:"Title"`
	DegreeU        int          `yaml:"DegreeU"`
	DegreeV        int          `yaml:"DegreeV"`
	KnotsU         []float64    `yaml:"KnotsU"`
	KnotsV         []float64    `yaml:"KnotsV"`
	Dimension      int          `yaml:"Dimension"`
	Coefficients   []float64    `yaml:"Coefficients"` // u index fastest, Dimension values per function
	Weights        []float64    `yaml:"Weights"`      // empty for a polynomial space
	Generator      string       `yaml:"Generator"`    // used when Coefficients is empty: Greville or Sine
	PruneTolerance float64      `yaml:"PruneTolerance"`
	ProcLimit      int          `yaml:"ProcLimit"`
	SampleCount    int          `yaml:"SampleCount"` // points per direction for the checks
	Refinements    []RefineStep `yaml:"Refinements"`
}

type StepType string

const (
	LineStep       StepType = "Line"
	FunctionStep   StepType = "Function"
	RegionStep     StepType = "Region"
	UniformStep    StepType = "Uniform"
	AbsorbStep     StepType = "Absorb"
	FullTensorStep StepType = "FullTensor"
)

// RefineStep is one refinement request. Which fields are read depends on Type:
//
//	Line:       Direction, Value, Start, End, Multiplicity
//	Function:   Directions, Function (position in the sorted basis)
//	Region:     Directions, Region [umin, umax, vmin, vmax]
//	Uniform:    Direction
//	Absorb:     Direction, Knots
//	FullTensor: nothing
type RefineStep struct {
	Type         StepType  `yaml:"Type"`
	Direction    string    `yaml:"Direction"`
	Directions   string    `yaml:"Directions"`
	Value        float64   `yaml:"Value"`
	Start        float64   `yaml:"Start"`
	End          float64   `yaml:"End"`
	Multiplicity int       `yaml:"Multiplicity"`
	Function     int       `yaml:"Function"`
	Region       []float64 `yaml:"Region"`
	Knots        []float64 `yaml:"Knots"`
}

func (rc *RefineCase) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, rc); err != nil {
		return
	}
	rc.setDefaults()
	return rc.Validate()
}

// ReadFile parses the case file at path
func ReadFile(path string) (rc *RefineCase, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		return
	}
	rc = &RefineCase{}
	if err = rc.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return
}

func (rc *RefineCase) setDefaults() {
	if rc.Dimension == 0 {
		rc.Dimension = 1
	}
	if rc.SampleCount == 0 {
		rc.SampleCount = 21
	}
	if len(rc.Coefficients) == 0 && rc.Generator == "" {
		rc.Generator = "Sine"
	}
	for i := range rc.Refinements {
		if rc.Refinements[i].Multiplicity == 0 {
			rc.Refinements[i].Multiplicity = 1
		}
	}
}

// Validate checks what can be checked without building the space
func (rc *RefineCase) Validate() error {
	if len(rc.KnotsU) == 0 || len(rc.KnotsV) == 0 {
		return fmt.Errorf("KnotsU and KnotsV are required")
	}
	if len(rc.Coefficients) == 0 {
		switch rc.Generator {
		case "Sine":
		case "Greville":
			if rc.Dimension != 2 {
				return fmt.Errorf("generator Greville needs Dimension 2, have %d", rc.Dimension)
			}
		default:
			return fmt.Errorf("unknown coefficient generator %q", rc.Generator)
		}
	}
	for i, st := range rc.Refinements {
		var err error
		switch st.Type {
		case LineStep, UniformStep, AbsorbStep:
			_, err = ParseDirections(st.Direction, false)
		case FunctionStep:
			_, err = ParseDirections(st.Directions, true)
		case RegionStep:
			if _, err = ParseDirections(st.Directions, true); err == nil && len(st.Region) != 4 {
				err = fmt.Errorf("region needs [umin, umax, vmin, vmax], have %v", st.Region)
			}
		case FullTensorStep:
		default:
			err = fmt.Errorf("unknown type %q", st.Type)
		}
		if err != nil {
			return fmt.Errorf("refinement %d: %w", i, err)
		}
	}
	return nil
}

// ParseDirections reads "u", "v" or, when several are allowed, "uv". The
// result holds 0 for u (lines of fixed u) and 1 for v.
func ParseDirections(s string, several bool) (dirs []int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" && several {
		s = "uv"
	}
	for _, c := range s {
		switch c {
		case 'u':
			dirs = append(dirs, 0)
		case 'v':
			dirs = append(dirs, 1)
		default:
			return nil, fmt.Errorf("direction %q, use u or v", s)
		}
	}
	if len(dirs) == 0 || (!several && len(dirs) != 1) {
		return nil, fmt.Errorf("direction %q, use u or v", s)
	}
	return
}

func (rc *RefineCase) Print(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", rc.Title)
	fmt.Fprintf(w, "[%d,%d]\t\t\t= Degree\n", rc.DegreeU, rc.DegreeV)
	fmt.Fprintf(w, "%v\t= KnotsU\n", rc.KnotsU)
	fmt.Fprintf(w, "%v\t= KnotsV\n", rc.KnotsV)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Dimension\n", rc.Dimension)
	if len(rc.Coefficients) == 0 {
		fmt.Fprintf(w, "[%s]\t\t\t= Coefficient Generator\n", rc.Generator)
	}
	if len(rc.Weights) != 0 {
		fmt.Fprintf(w, "[rational]\t\t= Weights\n")
	}
	for i, st := range rc.Refinements {
		fmt.Fprintf(w, "Refinements[%d] = %s\n", i, st)
	}
}

func (st RefineStep) String() string {
	switch st.Type {
	case LineStep:
		return fmt.Sprintf("Line %s=%g over [%g,%g] mult %d", st.Direction, st.Value, st.Start, st.End, st.Multiplicity)
	case FunctionStep:
		return fmt.Sprintf("Function %d in %s", st.Function, st.Directions)
	case RegionStep:
		return fmt.Sprintf("Region %v in %s", st.Region, st.Directions)
	case UniformStep:
		return fmt.Sprintf("Uniform in %s", st.Direction)
	case AbsorbStep:
		return fmt.Sprintf("Absorb %s knots %v", st.Direction, st.Knots)
	}
	return string(st.Type)
}
