package layout

import "math"

// Transform maps layout coordinates onto a viewport with a uniform scale
// followed by a translation.
type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
}

// Identity leaves coordinates unchanged.
var Identity = Transform{Scale: 1}

// Apply maps a layout point into viewport space.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.Scale + t.TranslateX, y*t.Scale + t.TranslateY
}

// Fit returns the transform that scales Bounds uniformly to fit inside a
// width x height viewport and centres it. Node positions are not touched,
// so relative ordering is preserved across resizes. Degenerate inputs yield
// Identity.
func (l Layout) Fit(width, height float64) Transform {
	bw, bh := l.Bounds.Width(), l.Bounds.Height()
	if l.Empty() || width <= 0 || height <= 0 || bw <= 0 || bh <= 0 {
		return Identity
	}
	s := math.Min(width/bw, height/bh)
	return Transform{
		Scale:      s,
		TranslateX: (width-bw*s)/2 - l.Bounds.MinX*s,
		TranslateY: (height-bh*s)/2 - l.Bounds.MinY*s,
	}
}
