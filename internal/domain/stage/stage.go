package stage

// Stage represents a confirmed or raw physiological sleep stage label.
type Stage string

const (
	StageAwake   Stage = "Awake"
	StageLight   Stage = "Light"
	StageDeep    Stage = "Deep"
	StageREM     Stage = "REM"
	StageApnea   Stage = "Apnea"
	StageSnoring Stage = "Snoring"
	StageTossing Stage = "Tossing"
	StageUnknown Stage = "Unknown"
)

// All lists every valid stage label.
var All = []Stage{
	StageAwake,
	StageLight,
	StageDeep,
	StageREM,
	StageApnea,
	StageSnoring,
	StageTossing,
}

// Parse validates a stage label. Unrecognized input maps to StageUnknown
// rather than erroring; classification must stay total.
func Parse(s string) Stage {
	for _, st := range All {
		if string(st) == s {
			return st
		}
	}
	return StageUnknown
}

// IsValid reports whether the stage is one of the closed enumeration values.
func (s Stage) IsValid() bool {
	for _, st := range All {
		if s == st {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// confidence per stage label, carried onto transition records.
var confidences = map[Stage]float64{
	StageDeep:  0.78,
	StageREM:   0.72,
	StageLight: 0.65,
	StageAwake: 0.60,
}

const defaultConfidence = 0.55

// Confidence returns the classifier confidence associated with a stage label.
func (s Stage) Confidence() float64 {
	if c, ok := confidences[s]; ok {
		return c
	}
	return defaultConfidence
}
