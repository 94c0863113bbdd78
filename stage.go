package scrapequeue

// Stage is the human-facing lifecycle label derived from a numeric progress
// value. Ordinal orders the bands from Queued (0) to Complete (6).
type Stage struct {
	Label   string
	Ordinal int
}

// The seven progress bands. Boundaries are part of the contract: the
// embedding UI renders these labels and tests pin the band edges.
var stages = []struct {
	max   int
	stage Stage
}{
	{0, Stage{Label: "Queued", Ordinal: 0}},
	{20, Stage{Label: "Fetching reviews", Ordinal: 1}},
	{40, Stage{Label: "Preprocessing", Ordinal: 2}},
	{60, Stage{Label: "Analyzing sentiment", Ordinal: 3}},
	{80, Stage{Label: "Extracting topics", Ordinal: 4}},
	{99, Stage{Label: "Summarizing", Ordinal: 5}},
	{100, Stage{Label: "Complete", Ordinal: 6}},
}

// StageForProgress maps a progress value onto its stage. Out-of-range input
// is clamped first. The mapper is consulted by presentation and for logging
// only; state transitions are driven solely by worker state strings, so the
// two signals can never disagree about lifecycle decisions.
func StageForProgress(progress int) Stage {
	p := clampProgress(progress)
	for _, band := range stages {
		if p <= band.max {
			return band.stage
		}
	}
	return stages[len(stages)-1].stage
}

// clampProgress clamps a reported progress value to [0, 100].
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
