package stratify

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

const mutateChunkSize = 1 << 20

// A snpEvent plants one simulated SNP: at reference position pos, every
// individual in [first,last] gets a substitute base. pick selects which of
// the three non-reference bases, so all affected individuals agree without
// the planner having to know the reference base in advance.
type snpEvent struct {
	pos         int64
	pick        uint8 // 0..2
	first, last int   // inclusive individual range
}

type mutatecmd struct {
	n          int
	minSNPs    int
	maxSNPs    int
	seed       uint64
	sharedProb float64
}

func (cmd *mutatecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	outputDir := flags.String("output-dir", ".", "output `directory` for individual genomes")
	flags.IntVar(&cmd.n, "n", 10, "number of individuals to simulate")
	flags.IntVar(&cmd.minSNPs, "min-snps", 1, "minimum SNPs per 1 MiB of reference")
	flags.IntVar(&cmd.maxSNPs, "max-snps", 10, "maximum SNPs per 1 MiB of reference")
	flags.Uint64Var(&cmd.seed, "seed", 0, "random seed (0 means nondeterministic)")
	flags.Float64Var(&cmd.sharedProb, "shared-prob", 0.3, "probability that a SNP is shared by a population group")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s mutate [options] <ref_genome>\n", prog)
		flags.PrintDefaults()
	}
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		flags.Usage()
		err = errors.New("exactly one reference genome path is required")
		return 2
	}
	if cmd.n < 1 || cmd.minSNPs < 1 || cmd.maxSNPs < cmd.minSNPs {
		err = errors.New("invalid individual count or SNP range")
		return 2
	}
	refPath := flags.Arg(0)

	refLength, err := genomeLength(refPath)
	if err != nil {
		return 1
	}
	if refLength == 0 {
		err = fmt.Errorf("reference genome %s is empty", refPath)
		return 1
	}
	if cmd.seed == 0 {
		cmd.seed = rand.Uint64()
	}

	events := cmd.planSNPs(refLength)
	log.Infof("planned %d SNP events across %d individuals", len(events), cmd.n)

	throttle := newThrottle(8)
	for i := 0; i < cmd.n; i++ {
		i := i
		throttle.Go(func() error {
			outPath := filepath.Join(*outputDir, fmt.Sprintf("individual_%d.genome", i))
			return cmd.writeIndividual(refPath, refLength, outPath, i, events)
		})
	}
	err = throttle.Wait()
	if err != nil {
		return 1
	}
	fmt.Fprintf(stdout, "wrote %d mutated genomes to %s\n", cmd.n, *outputDir)
	return 0
}

// planSNPs decides, up front, where every SNP lands and who carries it.
// Some SNPs are unique to one individual; the rest are shared by one of
// three population groups (40%/40%/20% of individuals), which is what makes
// the groups separable in PCA afterwards.
func (cmd *mutatecmd) planSNPs(refLength int64) []snpEvent {
	rng := rand.New(rand.NewSource(cmd.seed))
	g1 := cmd.n * 4 / 10
	g2 := cmd.n * 4 / 10
	if g1 == 0 {
		g1, g2 = 1, 0
	}
	var events []snpEvent
	for chunkStart := int64(0); chunkStart < refLength; chunkStart += mutateChunkSize {
		chunkLen := refLength - chunkStart
		if chunkLen > mutateChunkSize {
			chunkLen = mutateChunkSize
		}
		count := cmd.minSNPs + rng.Intn(cmd.maxSNPs-cmd.minSNPs+1)
		for s := 0; s < count; s++ {
			ev := snpEvent{
				pos:  chunkStart + rng.Int63n(chunkLen),
				pick: uint8(rng.Intn(3)),
			}
			if rng.Float64() < cmd.sharedProb && cmd.n > 1 {
				switch rg := rng.Float64(); {
				case rg < 0.4:
					ev.first, ev.last = 0, g1-1
				case rg < 0.8 && g2 > 0:
					ev.first, ev.last = g1, g1+g2-1
				default:
					ev.first, ev.last = g1+g2, cmd.n-1
				}
				if ev.last < ev.first {
					ev.first, ev.last = 0, g1-1
				}
			} else {
				ind := rng.Intn(cmd.n)
				ev.first, ev.last = ind, ind
			}
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].pos < events[j].pos })
	return events
}

// substituteBase returns the pick-th base from A/C/G/T excluding the
// reference base. Deterministic, so every individual sharing an event
// writes the same substitute.
func substituteBase(ref byte, pick uint8) byte {
	bases := [4]byte{'A', 'C', 'G', 'T'}
	var choices []byte
	for _, b := range bases {
		if b != ref {
			choices = append(choices, b)
		}
	}
	return choices[int(pick)%len(choices)]
}

// writeIndividual streams the reference in chunks, applies the events that
// include individual ind, and writes the result to outPath.
func (cmd *mutatecmd) writeIndividual(refPath string, refLength int64, outPath string, ind int, events []snpEvent) error {
	ref, err := os.Open(refPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", refPath, err)
	}
	defer ref.Close()
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	bufw := bufio.NewWriterSize(out, mutateChunkSize)

	buf := make([]byte, mutateChunkSize)
	var offset int64
	next := 0
	for offset < refLength {
		n, err := io.ReadFull(ref, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			out.Close()
			return fmt.Errorf("read %s: %w", refPath, err)
		}
		if n == 0 {
			break
		}
		chunk := buf[:n]
		for next < len(events) && events[next].pos < offset+int64(n) {
			ev := events[next]
			next++
			if ind < ev.first || ind > ev.last {
				continue
			}
			i := ev.pos - offset
			chunk[i] = substituteBase(chunk[i], ev.pick)
		}
		_, err = bufw.Write(chunk)
		if err != nil {
			out.Close()
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		offset += int64(n)
	}
	err = bufw.Flush()
	if err == nil {
		err = out.Close()
	} else {
		out.Close()
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	log.Infof("wrote %s", outPath)
	return nil
}

// throttle runs funcs concurrently, at most max at a time, keeping the
// first error.
type throttle struct {
	ch  chan bool
	wg  sync.WaitGroup
	mtx sync.Mutex
	err error
}

func newThrottle(max int) *throttle {
	return &throttle{ch: make(chan bool, max)}
}

func (t *throttle) Go(f func() error) {
	t.wg.Add(1)
	t.ch <- true
	go func() {
		defer func() {
			<-t.ch
			t.wg.Done()
		}()
		err := f()
		if err != nil {
			t.mtx.Lock()
			if t.err == nil {
				t.err = err
			}
			t.mtx.Unlock()
		}
	}()
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.err
}
