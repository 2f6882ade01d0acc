package meshkernel

import (
	"math"
	"sort"
)

// symmetricEigenvalues returns the eigenvalues of a symmetric 3x3 matrix
// using cyclic Jacobi rotations.
func symmetricEigenvalues(m [3][3]float64) [3]float64 {
	a := m
	for sweep := 0; sweep < 50; sweep++ {
		off := a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]
		if off < 1e-30 {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				if a[p][q] == 0 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				rotate(&a, p, q, c, s)
			}
		}
	}
	return [3]float64{a[0][0], a[1][1], a[2][2]}
}

// rotate applies the Jacobi rotation J^T A J in the (p, q) plane.
func rotate(a *[3][3]float64, p, q int, c, s float64) {
	for k := 0; k < 3; k++ {
		akp, akq := a[k][p], a[k][q]
		a[k][p] = c*akp - s*akq
		a[k][q] = s*akp + c*akq
	}
	for k := 0; k < 3; k++ {
		apk, aqk := a[p][k], a[q][k]
		a[p][k] = c*apk - s*aqk
		a[q][k] = s*apk + c*aqk
	}
}

// sortedMagnitudes returns absolute values in descending order.
func sortedMagnitudes(v [3]float64) [3]float64 {
	out := []float64{math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2])}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return [3]float64{out[0], out[1], out[2]}
}
