package cpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatExtAlwaysUnimplemented(t *testing.T) {
	ext := &FloatExt{Kind: "F"}
	err := ext.Execute(0x12345678)
	var notImpl *InstructionNotImplementedError
	assert.True(t, errors.As(err, &notImpl))
}
