package orchestrator

import "github.com/avantbook/distill/internal/model"

// band is a stage's pre-assigned slice of the overall [0,100] progress
// range (§4.9). A stage's onProgress callback reports completion
// within [0,1]; scale maps that fraction into the stage's band so
// progress stays monotone across the whole run.
type band struct {
	Low, High int
}

func (b band) scale(fraction float64) int {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return b.Low + int(float64(b.High-b.Low)*fraction)
}

// Progress bands match the source's defaults (§4.9, §9): claims
// pipeline splits extract/filter/cluster/reconstruct across
// [5,20]/[20,40]/[40,70]/[70,100]; chapters splits compress/assemble
// across [5,70]/[75,95]. Both runs jump to 100 on completion.
var claimsBands = map[model.Status]band{
	model.StatusExtractingClaims: {Low: 5, High: 20},
	model.StatusFilteringClaims:  {Low: 20, High: 40},
	model.StatusClusteringIdeas:  {Low: 40, High: 70},
	model.StatusReconstructing:   {Low: 70, High: 100},
}

var chaptersBands = map[model.Status]band{
	model.StatusCompressingChapters: {Low: 5, High: 70},
	model.StatusAssembling:          {Low: 75, High: 95},
}
