package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// glorotUniform draws from U(-l, l) with l = sqrt(6/(fanIn+fanOut)).
func glorotUniform(fanIn, fanOut int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	m := zeros(fanIn, fanOut)
	v := values(m)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * limit
	}
	return m
}

// orthogonal returns a rows×cols matrix with orthonormal rows (rows ≤ cols)
// or columns, taken from the QR factorization of a Gaussian matrix.
func orthogonal(rows, cols int, rng *rand.Rand) *mat.Dense {
	tall, short := cols, rows
	transpose := true
	if rows > cols {
		tall, short = rows, cols
		transpose = false
	}
	a := zeros(tall, short)
	av := values(a)
	for i := range av {
		av[i] = rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	thin := zeros(tall, short)
	for j := 0; j < short; j++ {
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1
		}
		for i := 0; i < tall; i++ {
			thin.Set(i, j, sign*q.At(i, j))
		}
	}
	if transpose {
		return mat.DenseCopyOf(thin.T())
	}
	return thin
}
