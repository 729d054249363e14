package stratify

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/check.v1"
)

type assocSuite struct{}

var _ = check.Suite(&assocSuite{})

func (s *assocSuite) TestPvalue(c *check.C) {
	a := make([]bool, 54)
	b := make([]bool, 54)
	for i := 0; i < 25; i++ {
		a[i] = true
		b[i] = true
	}
	for i := 25; i < 31; i++ {
		a[i] = true
	}
	for i := 31; i < 39; i++ {
		b[i] = true
	}
	c.Check(fmt.Sprintf("%.7f", pvalue(a, b)), check.Equals, "0.0006297")
	for i := range a {
		a[i] = !a[i]
	}
	c.Check(fmt.Sprintf("%.7f", pvalue(a, b)), check.Equals, "0.0006297")
}

func (s *assocSuite) TestPvalueNoObservations(c *check.C) {
	c.Check(pvalue([]bool{false, false}, []bool{true, false}), check.Equals, 1.0)
	c.Check(pvalue([]bool{true, false}, []bool{true, true}), check.Equals, 1.0)
}

func (s *assocSuite) TestGLMPvalue(c *check.C) {
	samples := []sampleInfo{
		{path: "s1", isCase: false, pcaComponents: []float64{-4, 1.2, -3}},
		{path: "s2", isCase: false, pcaComponents: []float64{7, -1.2, 2}},
		{path: "s3", isCase: true, pcaComponents: []float64{7, -1.2, 2}},
		{path: "s4", isCase: true, pcaComponents: []float64{-4, 1.1, -2}},
	}
	f := glmPvalueFunc(samples, 3)
	p := f([]bool{false, false, true, true})
	if math.IsNaN(p) || p < 0 || p > 1 {
		c.Errorf("p = %v, want a probability", p)
	}
}

func (s *assocSuite) TestAssocCommand(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "AAAAA")
	i0 := writeGenome(c, tmpdir, "i0", "ACAAA")
	i1 := writeGenome(c, tmpdir, "i1", "ACAAA")
	i2 := writeGenome(c, tmpdir, "i2", "AAAAA")
	i3 := writeGenome(c, tmpdir, "i3", "AAGAA")
	labels := tmpdir + "/labels.csv"
	err := os.WriteFile(labels, []byte("1\n1\n0\n0\n"), 0644)
	c.Assert(err, check.IsNil)

	var stdout bytes.Buffer
	exited := (&assoccmd{}).RunCommand("stratify", []string{
		"-labels", labels, ref, "4", i0, i1, i2, i3,
	}, nil, &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	c.Check(stdout.String(), check.Matches, `(?s)2,0\.15729\d*\n3,0\.31731\d*\n`)
}

func (s *assocSuite) TestAssocCommandUsage(c *check.C) {
	tmpdir := c.MkDir()
	ref := writeGenome(c, tmpdir, "ref", "ACGT")
	for _, args := range [][]string{
		{ref, "2", ref, ref}, // no -labels
		{"-labels", tmpdir + "/labels.csv"},
	} {
		exited := (&assoccmd{}).RunCommand("stratify", args, nil, os.Stderr, os.Stderr)
		c.Check(exited, check.Equals, 2, check.Commentf("args %v", args))
	}
}

func (s *assocSuite) TestLoadLabels(c *check.C) {
	tmpdir := c.MkDir()
	path := tmpdir + "/labels.csv"

	err := os.WriteFile(path, []byte("1\n0\n1\n"), 0644)
	c.Assert(err, check.IsNil)
	cases, err := loadLabels(path, 3)
	c.Assert(err, check.IsNil)
	c.Check(cases, check.DeepEquals, []bool{true, false, true})

	_, err = loadLabels(path, 4)
	c.Check(err, check.ErrorMatches, `labels: .* has 3 labels for 4 individuals`)

	err = os.WriteFile(path, []byte("1\nmaybe\n"), 0644)
	c.Assert(err, check.IsNil)
	_, err = loadLabels(path, 2)
	c.Check(err, check.ErrorMatches, `labels: .* line 2: want 0 or 1, got "maybe"`)
}
