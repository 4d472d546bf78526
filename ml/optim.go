package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GlobalNorm is the l2 norm of the gradients of params taken together.
func GlobalNorm(params []*Tensor) float64 {
	var sum float64
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		for _, v := range raw(p.Grad) {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// ClipByGlobalNorm rescales the gradients of params so that their global
// norm is at most maxNorm. It returns the norm before clipping.
func ClipByGlobalNorm(params []*Tensor, maxNorm float64) float64 {
	norm := GlobalNorm(params)
	if maxNorm > 0 && norm > maxNorm {
		s := maxNorm / norm
		for _, p := range params {
			if p.Grad != nil {
				p.Grad.Scale(s, p.Grad)
			}
		}
	}
	return norm
}

// SGD applies one gradient descent update with learning rate lr and clears
// the gradients.
func SGD(params []*Tensor, lr float64) {
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		floats.AddScaled(raw(p.Value), -lr, raw(p.Grad))
		p.ZeroGrad()
	}
}
