package stratify

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var chisquared = distuv.ChiSquared{K: 1, Src: rand.NewSource(rand.Uint64())}

// pvalue is a chi-square test of association between a variant indicator x
// and case status y over the same individuals.
func pvalue(x, y []bool) float64 {
	var (
		obs, exp [2]float64
		sum      float64
		sz       = float64(len(y))
	)
	for i, yi := range y {
		if x[i] {
			if yi {
				obs[0]++
			} else {
				obs[1]++
			}
		}
		if yi {
			exp[0]++
		} else {
			exp[1]++
		}
	}
	if exp[0] == 0 || exp[1] == 0 || obs[0]+obs[1] == 0 {
		return 1
	}
	exp[0] = (obs[0] + obs[1]) * exp[0] / sz
	exp[1] = (obs[0] + obs[1]) * exp[1] / sz
	for i := range exp {
		d := obs[i] - exp[i]
		sum += d * d / exp[i]
	}
	return 1 - chisquared.CDF(sum)
}

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.BinomialFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            stdlog.New(io.Discard, "", 0),
}

func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	for i, x := range a {
		a[i] = (x - mean) / std
	}
}

type sampleInfo struct {
	path          string
	isCase        bool
	pcaComponents []float64
}

// glmPvalueFunc fits the null logistic model (case status against a
// constant plus the top PCA components) once, and returns a function that
// scores one variant indicator column with a likelihood-ratio p-value
// against that null. Conditioning on the components is what corrects for
// population stratification.
func glmPvalueFunc(samples []sampleInfo, nPCA int) func(variant []bool) float64 {
	pcaNames := make([]string, 0, nPCA)
	data := make([][]statmodel.Dtype, 0, nPCA)
	for pca := 0; pca < nPCA; pca++ {
		series := make([]statmodel.Dtype, 0, len(samples))
		for _, si := range samples {
			series = append(series, si.pcaComponents[pca])
		}
		normalize(series)
		data = append(data, series)
		pcaNames = append(pcaNames, fmt.Sprintf("pca%d", pca))
	}

	outcome := make([]statmodel.Dtype, 0, len(samples))
	constants := make([]statmodel.Dtype, 0, len(samples))
	for _, si := range samples {
		if si.isCase {
			outcome = append(outcome, 1)
		} else {
			outcome = append(outcome, 0)
		}
		constants = append(constants, 1)
	}
	data = append([][]statmodel.Dtype{outcome, constants}, data...)
	names := append([]string{"outcome", "constants"}, pcaNames...)
	dataset := statmodel.NewDataset(data, names)

	model, err := glm.NewGLM(dataset, "outcome", names[1:], glmConfig)
	if err != nil {
		log.Warnf("null model: %s", err)
		return func([]bool) float64 { return math.NaN() }
	}
	resultNull := model.Fit()
	logNull := resultNull.LogLike()

	return func(variant []bool) (p float64) {
		defer func() {
			if recover() != nil {
				// typically "matrix singular or near-singular
				// with condition number +Inf"
				p = math.NaN()
			}
		}()

		indicator := make([]statmodel.Dtype, 0, len(samples))
		for i := range samples {
			if variant[i] {
				indicator = append(indicator, 1)
			} else {
				indicator = append(indicator, 0)
			}
		}
		data := append([][]statmodel.Dtype{data[0], indicator}, data[1:]...)
		names := append([]string{"outcome", "variant"}, names[1:]...)
		dataset := statmodel.NewDataset(data, names)

		model, err := glm.NewGLM(dataset, "outcome", names[1:], glmConfig)
		if err != nil {
			return math.NaN()
		}
		resultAlt := model.Fit()
		logAlt := resultAlt.LogLike()
		dist := distuv.ChiSquared{K: 1}
		return dist.Survival(-2 * (logNull - logAlt))
	}
}

type assoccmd struct {
	useGLM     bool
	components int
	maxP       float64
}

func (cmd *assoccmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	labelsFilename := flags.String("labels", "", "case/control labels `file`: one 0 or 1 per line, in individual order")
	outputFilename := flags.String("o", "-", "output `file`")
	flags.BoolVar(&cmd.useGLM, "glm", false, "adjust for population structure with a logistic model on the top PCA components")
	flags.IntVar(&cmd.components, "components", 4, "number of PCA components to adjust for (with -glm)")
	flags.Float64Var(&cmd.maxP, "max-p", 1, "only report positions with p <= `threshold`")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s assoc -labels labels.csv [options] <ref_genome> <num_individuals> <indiv1> [indiv2 ...]\n", prog)
		flags.PrintDefaults()
	}
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *labelsFilename == "" {
		flags.Usage()
		err = errors.New("-labels is required")
		return 2
	}
	refPath, indivPaths, err := parseRunArgs(flags.Args())
	if err != nil {
		flags.Usage()
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	cases, err := loadLabels(*labelsFilename, len(indivPaths))
	if err != nil {
		return 1
	}

	data, n, d, err := buildVariantMatrix(refPath, indivPaths)
	if err != nil {
		return 1
	}
	if n < 2 {
		err = fmt.Errorf("%w (have %d)", ErrDegenerateInput, n)
		return 1
	}

	var pvalueFunc func(variant []bool) float64
	if cmd.useGLM {
		comps := cmd.components
		if comps > d {
			comps = d
		}
		centered := centerData(data, n, d)
		cov := computeCovariance(centered, n, d)
		dec := diagonalDecompose(cov, d)
		scores := projectData(centered, n, d, dec)
		samples := make([]sampleInfo, n)
		for i := range samples {
			samples[i] = sampleInfo{
				path:          indivPaths[i],
				isCase:        cases[i],
				pcaComponents: scores[i*dec.numComponents : i*dec.numComponents+comps],
			}
		}
		pvalueFunc = glmPvalueFunc(samples, comps)
	} else {
		pvalueFunc = func(variant []bool) float64 { return pvalue(variant, cases) }
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	variant := make([]bool, n)
	reported := 0
	for pos := 0; pos < d; pos++ {
		any := false
		for row := 0; row < n; row++ {
			variant[row] = data[row*d+pos] != 0
			any = any || variant[row]
		}
		if !any {
			continue
		}
		p := pvalueFunc(variant)
		if p > cmd.maxP || math.IsNaN(p) {
			continue
		}
		fmt.Fprintf(bufw, "%d,%v\n", pos+1, p)
		reported++
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Infof("reported %d of %d positions", reported, d)
	return 0
}

// loadLabels reads one 0/1 per line, requiring exactly n lines.
func loadLabels(path string, n int) ([]bool, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	var cases []bool
	for lineno, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "0":
			cases = append(cases, false)
		case "1":
			cases = append(cases, true)
		default:
			return nil, fmt.Errorf("labels: %s line %d: want 0 or 1, got %q", path, lineno+1, line)
		}
	}
	if len(cases) != n {
		return nil, fmt.Errorf("labels: %s has %d labels for %d individuals", path, len(cases), n)
	}
	return cases, nil
}
