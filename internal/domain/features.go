package domain

import (
	"fmt"

	"github.com/couchcryptid/raintree-service/internal/tree"
)

// Feature names understood by the forecast source and the display helpers.
const (
	FeatureTMin     = "tmin"
	FeatureTMax     = "tmax"
	FeatureTAvg     = "tavg"
	FeatureWind     = "wspd"
	FeatureHumidity = "rhum"
	FeaturePressure = "pres"
)

var featureDisplayNames = map[string]string{
	FeatureTMin:     "Suhu Minimum (°C)",
	FeatureTMax:     "Suhu Maksimum (°C)",
	FeatureTAvg:     "Suhu Rata-rata (°C)",
	FeatureWind:     "Kecepatan Angin (km/jam)",
	FeatureHumidity: "Kelembapan Relatif (%)",
	FeaturePressure: "Tekanan Udara (hPa)",
}

// FeatureDisplayName returns the human-readable name of a feature, or the
// raw name when none is known.
func FeatureDisplayName(feature string) string {
	if name, ok := featureDisplayNames[feature]; ok {
		return name
	}
	return feature
}

// FeatureSummary renders a decision node as "<display name> ≤ <threshold>".
// Leaves have no summary.
func FeatureSummary(n *tree.Node) string {
	if n == nil || n.IsLeaf() {
		return ""
	}
	return fmt.Sprintf("%s ≤ %.2f", FeatureDisplayName(n.Feature()), n.Threshold())
}

// ClassName returns the user-facing name of a leaf label.
func ClassName(l tree.Label) string {
	switch l {
	case tree.LabelNoRain:
		return "Tidak Hujan"
	case tree.LabelRain:
		return "Hujan"
	default:
		return "Tidak tersedia"
	}
}

// BranchLabel returns the caption drawn on an edge: the left branch is taken
// when the test holds, the right one when it does not.
func BranchLabel(left bool) string {
	if left {
		return "YA (≤)"
	}
	return "TIDAK (>)"
}
