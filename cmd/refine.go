/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/lrspline/InputParameters"
	"github.com/notargets/lrspline/LR2D"
	"github.com/notargets/lrspline/utils"
)

type RefineModel struct {
	ICFile     string
	OutputFile string
	ProcLimit  int
}

// RefineCmd represents the refine command
var RefineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Build a spline space from a case file and refine it",
	Long: `
Reads a YAML case file, builds the tensor product space it describes, applies its
refinements in order and reports the partition of unity and surface deviation checks.

lrspline refine -I case.yaml -o refined.lr`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			rm  = &RefineModel{}
		)
		if rm.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			panic(err)
		}
		if rm.OutputFile, err = cmd.Flags().GetString("output"); err != nil {
			panic(err)
		}
		rm.ProcLimit = viper.GetInt("procLimit")
		if viper.GetBool("profile") {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		if err = RunRefineCase(context.Background(), rm, log); err != nil {
			log.WithError(err).Error("refine failed")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(RefineCmd)
	RefineCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML case file with degrees, knot vectors and refinements")
	RefineCmd.Flags().StringP("output", "o", "", "file to write the refined space to")
}

// RefineReport summarizes a refinement run
type RefineReport struct {
	Steps                 int
	Insertions            int
	NumBasis, NumElements int
	PartitionOfUnityError float64
	MaxDeviation          float64 // largest change of the surface over the sample grid
}

func RunRefineCase(ctx context.Context, rm *RefineModel, logger logrus.FieldLogger) (err error) {
	if len(rm.ICFile) == 0 {
		exampleFile := `
########################################
Title: "Test Case"
DegreeU: 2
DegreeV: 2
KnotsU: [0, 0, 0, 1, 2, 3, 3, 3]
KnotsV: [0, 0, 0, 1, 2, 3, 3, 3]
Generator: Sine # or Greville with Dimension: 2
Refinements:
  - Type: Line
    Direction: u
    Value: 1.5
    Start: 1
    End: 3
  - Type: Region
    Directions: uv
    Region: [0, 2, 0, 2]
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		return fmt.Errorf("must supply a case file (-I, --inputConditionsFile)")
	}
	var (
		rc  *InputParameters.RefineCase
		s   *LR2D.Space
		rep *RefineReport
	)
	if rc, err = InputParameters.ReadFile(rm.ICFile); err != nil {
		return
	}
	if rm.ProcLimit != 0 {
		rc.ProcLimit = rm.ProcLimit
	}
	rc.Print(os.Stdout)
	if s, rep, err = RunRefine(ctx, rc, logger); err != nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"steps":      rep.Steps,
		"insertions": rep.Insertions,
		"basis":      rep.NumBasis,
		"elements":   rep.NumElements,
		"unityError": rep.PartitionOfUnityError,
		"deviation":  rep.MaxDeviation,
		"memory":     utils.GetMemUsage(),
	}).Info("refinement finished")
	if len(rm.OutputFile) != 0 {
		err = writeSpace(rm.OutputFile, s)
	}
	return
}

// writeSpace saves s to path; a failed Close is reported like a failed write
func writeSpace(path string, s *LR2D.Space) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.Write(f)
}

// BuildSpace creates the tensor product space of the case
func BuildSpace(rc *InputParameters.RefineCase, opts ...LR2D.Option) (*LR2D.Space, error) {
	var (
		nu    = len(rc.KnotsU) - rc.DegreeU - 1
		nv    = len(rc.KnotsV) - rc.DegreeV - 1
		coefs = rc.Coefficients
	)
	if len(coefs) == 0 && nu > 0 && nv > 0 {
		coefs = make([]float64, nu*nv*rc.Dimension)
		for j := 0; j < nv; j++ {
			for i := 0; i < nu; i++ {
				c := coefs[(j*nu+i)*rc.Dimension : (j*nu+i+1)*rc.Dimension]
				switch rc.Generator {
				case "Greville":
					c[0], c[1] = greville(rc.KnotsU, rc.DegreeU, i), greville(rc.KnotsV, rc.DegreeV, j)
				default:
					for k := range c {
						c[k] = math.Sin(float64(i) + 0.7*float64(j) + float64(k))
					}
				}
			}
		}
	}
	opts = append(opts, LR2D.WithPruneTolerance(rc.PruneTolerance), LR2D.WithProcLimit(rc.ProcLimit))
	return LR2D.NewSpace(rc.DegreeU, rc.DegreeV, rc.KnotsU, rc.KnotsV, coefs, rc.Dimension, rc.Weights, opts...)
}

// greville is the knot average of function i of a full knot vector
func greville(kv []float64, deg, i int) (g float64) {
	if deg == 0 {
		return 0.5 * (kv[i] + kv[i+1])
	}
	for k := i + 1; k <= i+deg; k++ {
		g += kv[k]
	}
	return g / float64(deg)
}

// RunRefine builds the space of rc, applies its refinements and checks the result
func RunRefine(ctx context.Context, rc *InputParameters.RefineCase,
	logger logrus.FieldLogger) (s *LR2D.Space, rep *RefineReport, err error) {
	if s, err = BuildSpace(rc, LR2D.WithLogger(logger)); err != nil {
		return
	}
	var (
		ur     = s.ParamRange(LR2D.XFixed)
		vr     = s.ParamRange(LR2D.YFixed)
		us     = utils.LinSpace(ur[0], ur[1], rc.SampleCount)
		vs     = utils.LinSpace(vr[0], vr[1], rc.SampleCount)
		before [][][]float64
	)
	if before, err = s.EvaluateGrid(us, vs, 0); err != nil {
		return
	}
	rep = &RefineReport{}
	for i, st := range rc.Refinements {
		var results []*LR2D.RefinementResult
		if results, err = applyStep(ctx, s, st); err != nil {
			return nil, nil, fmt.Errorf("refinement %d (%s): %w", i, st, err)
		}
		rep.Steps++
		for _, r := range results {
			if r.Changed() {
				rep.Insertions++
			}
		}
		logger.WithFields(logrus.Fields{
			"step":  i,
			"basis": s.NumBasisFunctions(),
		}).Debug(st.String())
	}
	if err = s.CheckAdjacency(); err != nil {
		return
	}
	var after [][][]float64
	if after, err = s.EvaluateGrid(us, vs, 0); err != nil {
		return
	}
	for k := range before {
		for c := range before[k][0] {
			rep.MaxDeviation = math.Max(rep.MaxDeviation, math.Abs(after[k][0][c]-before[k][0][c]))
		}
	}
	rep.NumBasis, rep.NumElements = s.NumBasisFunctions(), s.NumElements()
	rep.PartitionOfUnityError = s.PartitionOfUnityError(rc.SampleCount)
	return
}

func directions(s string, several bool) (dirs []LR2D.Direction2D, err error) {
	var ds []int
	if ds, err = InputParameters.ParseDirections(s, several); err != nil {
		return
	}
	for _, d := range ds {
		dirs = append(dirs, LR2D.Direction2D(d))
	}
	return
}

func applyStep(ctx context.Context, s *LR2D.Space, st InputParameters.RefineStep) (res []*LR2D.RefinementResult, err error) {
	var dirs []LR2D.Direction2D
	switch st.Type {
	case InputParameters.LineStep:
		if dirs, err = directions(st.Direction, false); err != nil {
			return
		}
		return s.Refine(ctx, LR2D.Refinement2D{
			Kval:         st.Value,
			Start:        st.Start,
			End:          st.End,
			D:            dirs[0],
			Multiplicity: st.Multiplicity,
		})
	case InputParameters.FunctionStep:
		if dirs, err = directions(st.Directions, true); err != nil {
			return
		}
		fns := s.BasisFunctions()
		if st.Function < 0 || st.Function >= len(fns) {
			return nil, fmt.Errorf("function %d of %d: %w", st.Function, len(fns), LR2D.ErrOutOfRange)
		}
		return s.RefineBasisFunction(ctx, fns[st.Function].ID, dirs...)
	case InputParameters.RegionStep:
		if dirs, err = directions(st.Directions, true); err != nil {
			return
		}
		if len(st.Region) != 4 {
			return nil, fmt.Errorf("region %v: %w", st.Region, LR2D.ErrOutOfRange)
		}
		return s.RefineRegion(ctx, st.Region[0], st.Region[1], st.Region[2], st.Region[3], dirs...)
	case InputParameters.UniformStep:
		if dirs, err = directions(st.Direction, false); err != nil {
			return
		}
		return s.RefineUniform(ctx, dirs[0])
	case InputParameters.AbsorbStep:
		if dirs, err = directions(st.Direction, false); err != nil {
			return
		}
		return s.AbsorbKnotVector(ctx, dirs[0], st.Knots)
	case InputParameters.FullTensorStep:
		return nil, s.ExpandToFullTensor(ctx)
	}
	return nil, fmt.Errorf("unknown refinement type %q", st.Type)
}
