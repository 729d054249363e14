package stratify

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/namirgarib/population-stratification-pca/hgvs"
)

type diffcmd struct{}

func (cmd *diffcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	timeout := flags.Duration("timeout", 10*time.Second, "diff `timeout` (0 means none)")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s diff [options] <ref_genome> <indiv_genome>\n", prog)
		flags.PrintDefaults()
	}
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if flags.NArg() != 2 {
		flags.Usage()
		err = errors.New("exactly two genome paths are required")
		return 2
	}

	var seqs [2][]byte
	for i, path := range []string{flags.Arg(0), flags.Arg(1)} {
		length, err2 := genomeLength(path)
		if err2 == nil {
			seqs[i], err2 = loadGenome(path, length)
		}
		if err2 != nil {
			err = err2
			return 1
		}
	}

	variants, timedOut := hgvs.Diff(string(seqs[0]), string(seqs[1]), *timeout)
	if timedOut {
		log.Warn("diff timed out; reported variants are valid but may not be minimal")
	}
	bufw := bufio.NewWriter(stdout)
	for _, v := range variants {
		fmt.Fprintln(bufw, v.String())
	}
	fmt.Fprintf(bufw, "# %d variants\n", len(variants))
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	return 0
}
