package stratify

import (
	"fmt"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"
)

// decomposition holds the output of diagonalDecompose: eigenvalues in
// descending order and the matching row-permuted eigenvector matrix
// (dimension x dimension, row-major).
type decomposition struct {
	eigenvalues   []float64
	eigenvectors  []float64
	numComponents int
	dimension     int
}

// centerData subtracts each column's mean from every entry in that column.
// data is row-major n x d and is not modified; a new buffer is returned.
func centerData(data []float64, n, d int) []float64 {
	centered := make([]float64, n*d)
	means := make([]float64, d)
	for col := 0; col < d; col++ {
		sum := 0.0
		for row := 0; row < n; row++ {
			sum += data[row*d+col]
		}
		means[col] = sum / float64(n)
	}
	for row := 0; row < n; row++ {
		for col := 0; col < d; col++ {
			centered[row*d+col] = data[row*d+col] - means[col]
		}
	}
	return centered
}

// computeCovariance computes the d x d sample covariance matrix of centered
// (row-major n x d), dividing by n-1. Callers must guarantee n >= 2.
func computeCovariance(centered []float64, n, d int) []float64 {
	cov := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += centered[k*d+i] * centered[k*d+j]
			}
			cov[i*d+j] = sum / float64(n-1)
		}
	}
	return cov
}

// diagonalDecompose is not a real eigendecomposition: it takes the
// covariance matrix's diagonal as the "eigenvalues" and the covariance
// matrix itself as the "eigenvector" rows, then sorts the eigenvalues
// descending with an adjacent-swap pass, permuting eigenvector rows in
// lock-step. Downstream output depends on this exact behavior, so it is
// kept as-is; a real solver (Jacobi, QR) would change every score and is a
// deliberate non-feature for now.
func diagonalDecompose(cov []float64, d int) decomposition {
	eigenvectors := make([]float64, d*d)
	copy(eigenvectors, cov)
	eigenvalues := make([]float64, d)
	for i := 0; i < d; i++ {
		eigenvalues[i] = cov[i*d+i]
	}
	for i := 0; i < d-1; i++ {
		for j := 0; j < d-i-1; j++ {
			if eigenvalues[j] < eigenvalues[j+1] {
				eigenvalues[j], eigenvalues[j+1] = eigenvalues[j+1], eigenvalues[j]
				for col := 0; col < d; col++ {
					idx1 := j*d + col
					idx2 := (j+1)*d + col
					eigenvectors[idx1], eigenvectors[idx2] = eigenvectors[idx2], eigenvectors[idx1]
				}
			}
		}
	}
	return decomposition{
		eigenvalues:   eigenvalues,
		eigenvectors:  eigenvectors,
		numComponents: d,
		dimension:     d,
	}
}

// projectData projects each centered row onto the component rows of dec,
// returning a row-major n x numComponents score matrix.
func projectData(centered []float64, n, d int, dec decomposition) []float64 {
	comps := dec.numComponents
	scores := make([]float64, n*comps)
	for row := 0; row < n; row++ {
		for comp := 0; comp < comps; comp++ {
			sum := 0.0
			for col := 0; col < d; col++ {
				sum += centered[row*d+col] * dec.eigenvectors[comp*d+col]
			}
			scores[row*comps+comp] = sum
		}
	}
	return scores
}

// svdPCA is the opt-in alternative to diagonalDecompose+projectData: a real
// truncated-SVD PCA. Input is the raw (uncentered) row-major n x d variant
// matrix; output is a row-major n x components score matrix.
func svdPCA(data []float64, n, d, components int) ([]float64, error) {
	if components > n {
		components = n
	}
	// nlp wants samples in columns.
	mtx := mat.Matrix(mat.NewDense(n, d, data).T())
	transformer := nlp.NewPCA(components)
	transformer.Fit(mtx)
	mtx, err := transformer.Transform(mtx)
	if err != nil {
		return nil, fmt.Errorf("pca transform: %w", err)
	}
	mtx = mtx.T()
	rows, cols := mtx.Dims()
	scores := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			scores[i*cols+j] = mtx.At(i, j)
		}
	}
	return scores, nil
}
