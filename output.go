package stratify

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// writeScores writes one CSV line per individual: the projection values,
// comma separated, 6 decimal places, no trailing comma.
func writeScores(w io.Writer, result *analysisResult) error {
	comps := result.numComponents
	for row := 0; row < result.n; row++ {
		for comp := 0; comp < comps; comp++ {
			sep := ","
			if comp == comps-1 {
				sep = "\n"
			}
			_, err := fmt.Fprintf(w, "%.6f%s", result.scores[row*comps+comp], sep)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// writeEigenvalues writes one line per component: 1-based rank and the
// eigenvalue, descending.
func writeEigenvalues(w io.Writer, result *analysisResult) error {
	for i, val := range result.eigenvalues {
		_, err := fmt.Fprintf(w, "%d,%v\n", i+1, val)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeResultFiles serializes a finished analysis into results.csv and
// eigenvalues.csv under dir.
func writeResultFiles(dir string, result *analysisResult) error {
	err := writeFileVia(filepath.Join(dir, "results.csv"), func(w io.Writer) error {
		return writeScores(w, result)
	})
	if err != nil {
		return err
	}
	return writeFileVia(filepath.Join(dir, "eigenvalues.csv"), func(w io.Writer) error {
		return writeEigenvalues(w, result)
	})
}

// writeScoresNpy writes the score matrix as a 2-D float64 numpy array.
func writeScoresNpy(path string, result *analysisResult) error {
	return writeFileVia(path, func(w io.Writer) error {
		npw, err := gonpy.NewWriter(nopCloser{w})
		if err != nil {
			return err
		}
		npw.Shape = []int{result.n, result.numComponents}
		return npw.WriteFloat64(result.scores)
	})
}

func writeFileVia(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bufw := bufio.NewWriter(f)
	err = write(bufw)
	if err == nil {
		err = bufw.Flush()
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	log.Infof("wrote %s", path)
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
