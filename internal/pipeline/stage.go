package pipeline

import "fmt"

// Stage is how far a file got through its plan.
type Stage int

const (
	StageListed Stage = iota
	StageFetched
	StageNormalized
	StageRecognized
	StageAppended
	StageRelocated
	StagePublished
	// StageSkipped marks a file the ledger reports as already appended.
	StageSkipped
)

var stageNames = [...]string{
	StageListed:     "Listed",
	StageFetched:    "Fetched",
	StageNormalized: "Normalized",
	StageRecognized: "Recognized",
	StageAppended:   "Appended",
	StageRelocated:  "Relocated",
	StagePublished:  "Published",
	StageSkipped:    "Skipped",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Plan is the stage sequence a listed file goes through. With publishing on,
// the file is moved and shared before its block is written; the block embeds
// the public link.
func (o Options) Plan() []Stage {
	if o.Publish {
		return []Stage{StageFetched, StageNormalized, StageRecognized, StageRelocated, StagePublished, StageAppended}
	}
	return []Stage{StageFetched, StageNormalized, StageRecognized, StageAppended, StageRelocated}
}

var skipPlan = []Stage{StageSkipped, StageRelocated}
