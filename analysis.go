package stratify

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrLengthMismatch  = errors.New("genome length mismatch")
	ErrDegenerateInput = errors.New("need at least 2 individuals for covariance")
)

// analysisResult is the owned output of one pipeline run. Writing it
// anywhere is the caller's business; the pipeline itself never touches the
// filesystem for output.
type analysisResult struct {
	scores        []float64 // row-major n x numComponents
	eigenvalues   []float64 // descending, one per component
	n             int
	numComponents int
}

// buildVariantMatrix loads the reference and each individual genome in
// input order, calls variants per individual, and assembles the row-major
// n x d variant matrix. Any file problem or length mismatch aborts the
// whole batch: one bad input invalidates every row's positional meaning.
func buildVariantMatrix(refPath string, indivPaths []string) (data []float64, n, d int, err error) {
	refLength, err := genomeLength(refPath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reference genome: %w", err)
	}
	if refLength == 0 {
		return nil, 0, 0, fmt.Errorf("reference genome %s is empty", refPath)
	}
	log.Infof("reference genome length: %d", refLength)

	refData, err := loadGenome(refPath, refLength)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reference genome: %w", err)
	}
	log.WithFields(log.Fields{"path": refPath, "blake2b": genomeDigest(refData)}).Debug("loaded reference")

	n = len(indivPaths)
	d = int(refLength)
	data = make([]float64, 0, n*d)
	for i, path := range indivPaths {
		length, err := genomeLength(path)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("individual %d: %w", i, err)
		}
		if length != refLength {
			return nil, 0, 0, fmt.Errorf("individual %d (%s): %w: length %d != reference length %d", i, path, ErrLengthMismatch, length, refLength)
		}
		indivData, err := loadGenome(path, length)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("individual %d: %w", i, err)
		}
		log.WithFields(log.Fields{"path": path, "blake2b": genomeDigest(indivData)}).Debug("loaded individual")
		data = append(data, callVariants(refData, indivData)...)
	}
	return data, n, d, nil
}

// runAnalysis runs the whole pipeline: variant matrix assembly, centering,
// covariance, diagonal decomposition, projection.
func runAnalysis(refPath string, indivPaths []string) (*analysisResult, error) {
	data, n, d, err := buildVariantMatrix(refPath, indivPaths)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, fmt.Errorf("%w (have %d)", ErrDegenerateInput, n)
	}
	log.Infof("running PCA: %d individuals x %d positions", n, d)
	centered := centerData(data, n, d)
	cov := computeCovariance(centered, n, d)
	dec := diagonalDecompose(cov, d)
	scores := projectData(centered, n, d, dec)
	return &analysisResult{
		scores:        scores,
		eigenvalues:   dec.eigenvalues,
		n:             n,
		numComponents: dec.numComponents,
	}, nil
}

// runSVDAnalysis is the opt-in real-PCA variant of runAnalysis. The
// reported eigenvalues are the sample variances of the projected score
// columns, which is what a true eigendecomposition would produce.
func runSVDAnalysis(refPath string, indivPaths []string, components int) (*analysisResult, error) {
	data, n, d, err := buildVariantMatrix(refPath, indivPaths)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, fmt.Errorf("%w (have %d)", ErrDegenerateInput, n)
	}
	log.Infof("running truncated-SVD PCA: %d individuals x %d positions, %d components", n, d, components)
	scores, err := svdPCA(data, n, d, components)
	if err != nil {
		return nil, err
	}
	comps := len(scores) / n
	eigenvalues := make([]float64, comps)
	col := make([]float64, n)
	for comp := 0; comp < comps; comp++ {
		for row := 0; row < n; row++ {
			col[row] = scores[row*comps+comp]
		}
		eigenvalues[comp] = stat.Variance(col, nil)
	}
	return &analysisResult{
		scores:        scores,
		eigenvalues:   eigenvalues,
		n:             n,
		numComponents: comps,
	}, nil
}

type runcmd struct{}

func (cmd *runcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	outputDir := flags.String("output-dir", ".", "output `directory` for results.csv and eigenvalues.csv")
	outputFormat := flags.String("output-format", "csv", "output `format`: csv or npy (npy also writes scores.npy)")
	method := flags.String("method", "diagonal", "decomposition `method`: diagonal (historical behavior) or svd")
	components := flags.Int("components", 4, "number of components (svd method only)")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s run [options] <ref_genome> <num_individuals> <indiv1> [indiv2 ...]\n", prog)
		flags.PrintDefaults()
	}
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *outputFormat != "csv" && *outputFormat != "npy" {
		err = fmt.Errorf("invalid output format %q", *outputFormat)
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

	var result *analysisResult
	switch *method {
	case "diagonal":
		result, err = runAnalysis(refPath, indivPaths)
	case "svd":
		result, err = runSVDAnalysis(refPath, indivPaths, *components)
	default:
		err = fmt.Errorf("invalid method %q", *method)
		return 2
	}
	if err != nil {
		return 1
	}

	err = writeResultFiles(*outputDir, result)
	if err != nil {
		return 1
	}
	if *outputFormat == "npy" {
		err = writeScoresNpy(filepath.Join(*outputDir, "scores.npy"), result)
		if err != nil {
			return 1
		}
	}
	fmt.Fprintf(stdout, "PCA analysis completed. See %s and %s\n",
		filepath.Join(*outputDir, "results.csv"), filepath.Join(*outputDir, "eigenvalues.csv"))
	return 0
}

// parseRunArgs checks the positional arguments: reference path, individual
// count, and at least that many individual paths. Extra trailing paths
// beyond the count are ignored, matching historical behavior.
func parseRunArgs(args []string) (refPath string, indivPaths []string, err error) {
	if len(args) < 3 {
		return "", nil, errors.New("usage: <ref_genome> <num_individuals> <indiv1> [indiv2 ...]")
	}
	refPath = args[0]
	num, err := strconv.Atoi(args[1])
	if err != nil || num < 1 || len(args)-2 < num {
		return "", nil, errors.New("invalid number of individuals or not enough file paths")
	}
	return refPath, args[2 : 2+num], nil
}
