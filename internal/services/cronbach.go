package services

// CronbachAlpha computes Cronbach's alpha for a [participants][questions]
// matrix using population variance. The result is clamped to [0, 1]; ragged
// or degenerate input yields 0.
func CronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}

	means := make([]float64, k)
	totals := make([]float64, n)
	for i, row := range matrix {
		if len(row) != k {
			return 0
		}
		for j, v := range row {
			means[j] += v
			totals[i] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	var sumItemVars float64
	for j := 0; j < k; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			d := matrix[i][j] - means[j]
			sum += d * d
		}
		sumItemVars += sum / float64(n)
	}

	totalVar := variance(totals)
	if totalVar == 0 {
		return 0
	}
	kf := float64(k)
	alpha := (kf / (kf - 1)) * (1 - sumItemVars/totalVar)
	return min(max(alpha, 0), 1)
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}
