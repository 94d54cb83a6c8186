package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomopfuku/gobeast/model"
)

func TestStrictClock(t *testing.T) {
	rate := model.NewParameter("clock.rate", 0.5)
	c := NewStrict("clock", rate)
	assert.Equal(t, 0.5, c.BranchRate(3))
	assert.Equal(t, 0., rate.Lower())

	c.StoreModelState()
	rate.SetValue(0, 2)
	assert.Equal(t, 2., c.BranchRate(0))
	c.RestoreModelState()
	assert.Equal(t, 0.5, c.BranchRate(0))
}
