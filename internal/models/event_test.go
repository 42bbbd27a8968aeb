package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventValidate(t *testing.T) {
	assert.NoError(t, Event{UserID: "u1", Type: TypeFollow}.Validate())
	assert.NoError(t, Event{UserID: "u1", Type: TypeFollow, Priority: PriorityUrgent}.Validate())

	assert.ErrorIs(t, Event{Type: TypeFollow}.Validate(), ErrMissingUserID)
	assert.ErrorIs(t, Event{UserID: "u1"}.Validate(), ErrMissingType)
	assert.ErrorIs(t, Event{UserID: "u1", Type: TypeFollow, Priority: "mega"}.Validate(), ErrInvalidPriority)
}

func TestPriorityBypass(t *testing.T) {
	assert.True(t, PriorityUrgent.Bypass())
	assert.True(t, PriorityHigh.Bypass())
	assert.False(t, PriorityMedium.Bypass())
	assert.False(t, PriorityLow.Bypass())
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow} {
		assert.True(t, p.Valid())
	}
	assert.False(t, Priority("").Valid())
	assert.False(t, Priority("mega").Valid())
}
