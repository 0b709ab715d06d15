package nn

import "math"

// PaymentTerms are the canonical net terms the clustering penalty refers to.
var PaymentTerms = []float64{15, 30, 45, 60, 90}

// ClusteringWeight scales the clustering penalty against the squared error.
const ClusteringWeight = 0.1

// Loss is MSE(pred, label) + 0.1·mean(exp(-min_k |pred - term_k|)).
func Loss(pred, label []float64) float64 {
	l, _ := LossGrad(pred, label)
	return l
}

// LossGrad returns the loss and its gradient with respect to each prediction.
func LossGrad(pred, label []float64) (float64, []float64) {
	n := float64(len(pred))
	grad := make([]float64, len(pred))
	if n == 0 {
		return 0, grad
	}
	var mse, penalty float64
	for i, p := range pred {
		diff := p - label[i]
		mse += diff * diff

		d, sign := nearestTerm(p)
		e := math.Exp(-d)
		penalty += e

		grad[i] = 2*diff/n - ClusteringWeight*e*sign/n
	}
	return mse/n + ClusteringWeight*penalty/n, grad
}

// nearestTerm returns |p - t*| for the closest term t* and sign(p - t*).
func nearestTerm(p float64) (float64, float64) {
	best, sign := math.Inf(1), 0.0
	for _, t := range PaymentTerms {
		if d := math.Abs(p - t); d < best {
			best = d
			switch {
			case p > t:
				sign = 1
			case p < t:
				sign = -1
			default:
				sign = 0
			}
		}
	}
	return best, sign
}
