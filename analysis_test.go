package stratify

import (
	"bytes"
	"errors"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type analysisSuite struct{}

var _ = check.Suite(&analysisSuite{})

func writeGenome(c *check.C, dir, name, seq string) string {
	path := dir + "/" + name
	err := os.WriteFile(path, []byte(seq), 0644)
	c.Assert(err, check.IsNil)
	return path
}

func (s *analysisSuite) TestBuildVariantMatrix(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AACC")
	indiv := writeGenome(c, tmpdir, "i0", "AACG")

	data, n, d, err := buildVariantMatrix(ref, []string{indiv})
	c.Assert(err, check.IsNil)
	c.Check(n, check.Equals, 1)
	c.Check(d, check.Equals, 4)
	c.Check(data, check.DeepEquals, []float64{0, 0, 0, 1})
}

func (s *analysisSuite) TestSingleIndividualIsDegenerate(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AACC")
	indiv := writeGenome(c, tmpdir, "i0", "AACG")

	_, err := runAnalysis(ref, []string{indiv})
	c.Check(errors.Is(err, ErrDegenerateInput), check.Equals, true)

	_, err = runSVDAnalysis(ref, []string{indiv}, 2)
	c.Check(errors.Is(err, ErrDegenerateInput), check.Equals, true)
}

func (s *analysisSuite) TestTwoIndividuals(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AACC")
	i0 := writeGenome(c, tmpdir, "i0", "AACC")
	i1 := writeGenome(c, tmpdir, "i1", "AAGG")

	result, err := runAnalysis(ref, []string{i0, i1})
	c.Assert(err, check.IsNil)
	c.Check(result.n, check.Equals, 2)
	c.Check(result.numComponents, check.Equals, 4)
	c.Check(result.eigenvalues, check.DeepEquals, []float64{0.5, 0.5, 0, 0})
	c.Check(result.scores, check.DeepEquals, []float64{
		-0.5, -0.5, 0, 0,
		0.5, 0.5, 0, 0,
	})
}

func (s *analysisSuite) TestLengthMismatchAborts(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "ACGTACGTAC") // 10 bytes
	i0 := writeGenome(c, tmpdir, "i0", "ACGTACGT")     // 8 bytes

	_, _, _, err := buildVariantMatrix(ref, []string{i0})
	c.Assert(errors.Is(err, ErrLengthMismatch), check.Equals, true)
	c.Check(err, check.ErrorMatches, `individual 0 .*length 8 != reference length 10`)

	outdir := c.MkDir()
	exited := (&runcmd{}).RunCommand("stratify", []string{"-output-dir", outdir, ref, "1", i0}, nil, os.Stderr, os.Stderr)
	c.Check(exited, check.Equals, 1)
	// no partial output
	_, err = os.Stat(outdir + "/results.csv")
	c.Check(os.IsNotExist(err), check.Equals, true)
	_, err = os.Stat(outdir + "/eigenvalues.csv")
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *analysisSuite) TestEmptyReference(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "")
	i0 := writeGenome(c, tmpdir, "i0", "ACGT")
	_, _, _, err := buildVariantMatrix(ref, []string{i0})
	c.Check(err, check.ErrorMatches, `reference genome .* is empty`)
}

func (s *analysisSuite) TestRunCommand(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AACC")
	i0 := writeGenome(c, tmpdir, "i0", "AACC")
	i1 := writeGenome(c, tmpdir, "i1", "AAGG")
	outdir := c.MkDir()

	var stdout bytes.Buffer
	exited := (&runcmd{}).RunCommand("stratify", []string{"-output-dir", outdir, ref, "2", i0, i1}, nil, &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	c.Check(strings.Contains(stdout.String(), "PCA analysis completed"), check.Equals, true)

	scores, err := os.ReadFile(outdir + "/results.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(scores), check.Equals, "-0.500000,-0.500000,0.000000,0.000000\n0.500000,0.500000,0.000000,0.000000\n")

	evals, err := os.ReadFile(outdir + "/eigenvalues.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(evals), check.Equals, "1,0.5\n2,0.5\n3,0\n4,0\n")
}

func (s *analysisSuite) TestRunCommandIdempotent(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "ACGTACGTACGT")
	i0 := writeGenome(c, tmpdir, "i0", "ACGTACGAACGT")
	i1 := writeGenome(c, tmpdir, "i1", "TCGTACGTACGA")
	i2 := writeGenome(c, tmpdir, "i2", "ACGAACGTACGT")

	var outputs [2][2][]byte
	for run := 0; run < 2; run++ {
		outdir := c.MkDir()
		exited := (&runcmd{}).RunCommand("stratify", []string{"-output-dir", outdir, ref, "3", i0, i1, i2}, nil, os.Stderr, os.Stderr)
		c.Assert(exited, check.Equals, 0)
		for i, name := range []string{"/results.csv", "/eigenvalues.csv"} {
			buf, err := os.ReadFile(outdir + name)
			c.Assert(err, check.IsNil)
			outputs[run][i] = buf
		}
	}
	c.Check(bytes.Equal(outputs[0][0], outputs[1][0]), check.Equals, true)
	c.Check(bytes.Equal(outputs[0][1], outputs[1][1]), check.Equals, true)
}

func (s *analysisSuite) TestRunCommandNpyOutput(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AACC")
	i0 := writeGenome(c, tmpdir, "i0", "AACC")
	i1 := writeGenome(c, tmpdir, "i1", "AAGG")
	outdir := c.MkDir()

	exited := (&runcmd{}).RunCommand("stratify", []string{"-output-dir", outdir, "-output-format", "npy", ref, "2", i0, i1}, nil, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	f, err := os.Open(outdir + "/scores.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{2, 4})
	scores, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(scores, check.DeepEquals, []float64{-0.5, -0.5, 0, 0, 0.5, 0.5, 0, 0})
}

func (s *analysisSuite) TestUsageErrors(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AACC")
	for _, args := range [][]string{
		{},
		{ref},
		{ref, "1"},
		{ref, "0", ref},
		{ref, "two", ref},
		{ref, "3", ref, ref},
		{"-output-format", "xml", ref, "2", ref, ref},
	} {
		var stderr bytes.Buffer
		exited := (&runcmd{}).RunCommand("stratify", args, nil, &bytes.Buffer{}, &stderr)
		c.Check(exited, check.Equals, 2, check.Commentf("args %v", args))
	}
}
