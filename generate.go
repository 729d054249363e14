package stratify

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

type generatecmd struct {
	bases int64
	gc    float64
	seed  uint64
	gzip  bool
}

func (cmd *generatecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	outputFilename := flags.String("o", "-", "output `file`")
	flags.Int64Var(&cmd.bases, "bases", 0, "number of bases to generate")
	flags.Float64Var(&cmd.gc, "gc", 0.5, "GC content, 0 to 1")
	flags.Uint64Var(&cmd.seed, "seed", 0, "random seed (0 means nondeterministic)")
	flags.BoolVar(&cmd.gzip, "z", false, "gzip-compress output")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if cmd.bases < 1 {
		err = errors.New("number of bases must be positive")
		return 2
	}
	if cmd.gc < 0 || cmd.gc > 1 {
		err = errors.New("GC content must be between 0 and 1")
		return 2
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
	bufw := bufio.NewWriterSize(output, 1<<24)
	w := io.Writer(bufw)
	var gzw *pgzip.Writer
	if cmd.gzip {
		gzw = pgzip.NewWriter(bufw)
		w = gzw
	}

	if cmd.seed == 0 {
		cmd.seed = rand.Uint64()
	}
	err = cmd.generate(w)
	if err != nil {
		return 1
	}
	if gzw != nil {
		err = gzw.Close()
		if err != nil {
			return 1
		}
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Infof("generated %d bases", cmd.bases)
	return 0
}

// generate writes cmd.bases random A/C/G/T bytes. A 16-bit draw per base
// decides G/C vs A/T against the GC threshold; the low bit picks which of
// the pair.
func (cmd *generatecmd) generate(w io.Writer) error {
	rng := rand.New(rand.NewSource(cmd.seed))
	// 16-bit threshold; gc=1 maps to 65536 so every draw lands on G/C
	threshold := uint32(cmd.gc * 65536)
	buf := make([]byte, 0, 1<<20)
	remaining := cmd.bases
	for remaining > 0 {
		r := rng.Uint64()
		for i := 0; i < 4 && remaining > 0; i++ {
			part := uint32(r>>(48-16*i)) & 0xffff
			var base byte
			if part < threshold {
				if part&1 == 1 {
					base = 'C'
				} else {
					base = 'G'
				}
			} else {
				if part&1 == 1 {
					base = 'T'
				} else {
					base = 'A'
				}
			}
			buf = append(buf, base)
			remaining--
		}
		if len(buf) >= cap(buf)-4 {
			_, err := w.Write(buf)
			if err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	_, err := w.Write(buf)
	return err
}
