package core

// FieldSampler evaluates a scalar field in object space. Results are
// deterministic for fixed inputs and NaN outside the field's support.
type FieldSampler interface {
	Sample(p Vec3, attributeIndex int, time float64) float64
	Gradient(p Vec3, attributeIndex int, time float64) Vec3
}

// ClampTime limits an evaluation time to [0, 1]
func ClampTime(time float64) float64 {
	return max(0, min(1, time))
}
