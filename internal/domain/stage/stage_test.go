package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Stage
	}{
		{"Deep", StageDeep},
		{"REM", StageREM},
		{"Light", StageLight},
		{"Awake", StageAwake},
		{"Apnea", StageApnea},
		{"Snoring", StageSnoring},
		{"Tossing", StageTossing},
		{"", StageUnknown},
		{"deep", StageUnknown},
		{"N3", StageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, st := range All {
		assert.True(t, st.IsValid(), st)
	}
	assert.False(t, StageUnknown.IsValid())
	assert.False(t, Stage("bogus").IsValid())
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.78, StageDeep.Confidence())
	assert.Equal(t, 0.72, StageREM.Confidence())
	assert.Equal(t, 0.65, StageLight.Confidence())
	assert.Equal(t, 0.60, StageAwake.Confidence())

	// everything outside the scored set shares the default
	assert.Equal(t, 0.55, StageApnea.Confidence())
	assert.Equal(t, 0.55, StageUnknown.Confidence())
}
