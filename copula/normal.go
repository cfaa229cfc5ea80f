package copula

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/rng"
)

// MultivariateNormal draws correlated standard normal vectors.
//
// It is built either from a full correlation matrix, decomposed once at
// construction, or from one-factor loadings where corr(i,j) = b_i*b_j.
type MultivariateNormal struct {
	dim  int
	core *rng.Core

	// matrix form: row-major transform, lower triangular after Cholesky,
	// dense after the eigen fallback.
	corr       *mat.SymDense
	factor     []float64
	triangular bool
	fallback   bool

	// one-factor form
	loadings []float64
	idio     []float64

	z []float64
}

// NewMultivariateNormal decomposes corr and returns a sampler on core.
func NewMultivariateNormal(corr [][]float64, core *rng.Core) (*MultivariateNormal, error) {
	sym, err := correlationMatrix(corr)
	if err != nil {
		return nil, fmt.Errorf("NewMultivariateNormal: %w", err)
	}
	return newMatrixNormal(sym, core)
}

func newMatrixNormal(sym *mat.SymDense, core *rng.Core) (*MultivariateNormal, error) {
	n := sym.SymmetricDim()
	factor, triangular, err := decompose(sym, config.GetConfig().EigenvalueFloor)
	if err != nil {
		return nil, fmt.Errorf("NewMultivariateNormal: %w", err)
	}
	return &MultivariateNormal{
		dim:        n,
		core:       core,
		corr:       sym,
		factor:     factor,
		triangular: triangular,
		fallback:   !triangular,
		z:          make([]float64, n),
	}, nil
}

// NewFactorNormal returns a one-factor sampler: x_i = b_i*M + sqrt(1-b_i^2)*e_i.
func NewFactorNormal(loadings []float64, core *rng.Core) (*MultivariateNormal, error) {
	if len(loadings) == 0 {
		return nil, fmt.Errorf("NewFactorNormal: %w: empty loadings", ErrInvalidSpec)
	}
	b := make([]float64, len(loadings))
	idio := make([]float64, len(loadings))
	for i, l := range loadings {
		if math.IsNaN(l) || l < -1 || l > 1 {
			return nil, fmt.Errorf("NewFactorNormal: %w: loading %d = %v outside [-1, 1]", ErrInvalidSpec, i, l)
		}
		b[i] = l
		idio[i] = math.Sqrt(1 - l*l)
	}
	return &MultivariateNormal{
		dim:      len(b),
		core:     core,
		loadings: b,
		idio:     idio,
	}, nil
}

// Size returns the vector dimension.
func (m *MultivariateNormal) Size() int { return m.dim }

// UsedEigenFallback reports whether Cholesky failed and the eigen transform is in use.
func (m *MultivariateNormal) UsedEigenFallback() bool { return m.fallback }

// Draw fills x with one correlated normal vector. len(x) must equal Size.
func (m *MultivariateNormal) Draw(x []float64) {
	if m.loadings != nil {
		f := m.core.Normal()
		for i, b := range m.loadings {
			x[i] = b*f + m.idio[i]*m.core.Normal()
		}
		return
	}

	n := m.dim
	for i := range m.z {
		m.z[i] = m.core.Normal()
	}
	for i := 0; i < n; i++ {
		row := m.factor[i*n : (i+1)*n]
		lim := n
		if m.triangular {
			lim = i + 1
		}
		s := 0.0
		for j := 0; j < lim; j++ {
			s += row[j] * m.z[j]
		}
		x[i] = s
	}
}

// Correlation returns corr(i, j) of the sampled vector.
func (m *MultivariateNormal) Correlation(i, j int) float64 {
	if i == j {
		return 1
	}
	if m.loadings != nil {
		return m.loadings[i] * m.loadings[j]
	}
	return m.corr.At(i, j)
}

// Loadings returns the one-factor loadings, or nil for a matrix sampler.
func (m *MultivariateNormal) Loadings() []float64 {
	if m.loadings == nil {
		return nil
	}
	return append([]float64(nil), m.loadings...)
}

func (m *MultivariateNormal) subset(names []int) (*MultivariateNormal, error) {
	if m.loadings != nil {
		b := make([]float64, len(names))
		for k, i := range names {
			b[k] = m.loadings[i]
		}
		return NewFactorNormal(b, m.core)
	}
	sub := mat.NewSymDense(len(names), nil)
	for a, i := range names {
		for b := a; b < len(names); b++ {
			sub.SetSym(a, b, m.corr.At(i, names[b]))
		}
	}
	return newMatrixNormal(sub, m.core)
}

func (m *MultivariateNormal) withCore(core *rng.Core) *MultivariateNormal {
	cp := *m
	cp.core = core
	if cp.z != nil {
		cp.z = make([]float64, len(m.z))
	}
	return &cp
}

// correlationMatrix validates a square, symmetric, unit-diagonal matrix.
func correlationMatrix(corr [][]float64) (*mat.SymDense, error) {
	n := len(corr)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty correlation matrix", ErrInvalidSpec)
	}
	sym := mat.NewSymDense(n, nil)
	for i, row := range corr {
		if len(row) != n {
			return nil, fmt.Errorf("%w: correlation matrix is not square (row %d has %d entries, want %d)", ErrInvalidSpec, i, len(row), n)
		}
		if math.Abs(row[i]-1) > unitTolerance {
			return nil, fmt.Errorf("%w: diagonal entry %d = %v, want 1", ErrInvalidSpec, i, row[i])
		}
		for j := 0; j < i; j++ {
			v := row[j]
			if math.IsNaN(v) || v < -1 || v > 1 {
				return nil, fmt.Errorf("%w: correlation (%d,%d) = %v outside [-1, 1]", ErrInvalidSpec, i, j, v)
			}
			if math.Abs(v-corr[j][i]) > unitTolerance {
				return nil, fmt.Errorf("%w: correlation matrix is not symmetric at (%d,%d)", ErrInvalidSpec, i, j)
			}
			sym.SetSym(j, i, v)
		}
		sym.SetSym(i, i, 1)
	}
	return sym, nil
}

const unitTolerance = 1e-8

// decompose returns a row-major n×n transform A with A*A^T ≈ sym.
//
// Cholesky is tried first. When sym is not positive definite the symmetric
// eigen-decomposition is used instead, eigenvalues below floor are clipped to
// zero and each row is rescaled to unit length so the output keeps unit variance.
func decompose(sym *mat.SymDense, floor float64) (factor []float64, triangular bool, err error) {
	n := sym.SymmetricDim()
	factor = make([]float64, n*n)

	var chol mat.Cholesky
	if chol.Factorize(sym) {
		var l mat.TriDense
		chol.LTo(&l)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				factor[i*n+j] = l.At(i, j)
			}
		}
		return factor, true, nil
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, false, fmt.Errorf("%w: eigen-decomposition failed", ErrInvalidSpec)
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	for k, lambda := range vals {
		if lambda < floor {
			lambda = 0
		}
		s := math.Sqrt(lambda)
		for i := 0; i < n; i++ {
			factor[i*n+k] = vecs.At(i, k) * s
		}
	}
	for i := 0; i < n; i++ {
		row := factor[i*n : (i+1)*n]
		norm := 0.0
		for _, v := range row {
			norm += v * v
		}
		if norm <= 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for j := range row {
			row[j] /= norm
		}
	}
	return factor, false, nil
}
