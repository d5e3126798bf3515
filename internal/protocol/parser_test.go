package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/motorbank-core/internal/motor"
)

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[motor.Index]motor.State
	}{
		{
			name: "single open",
			in:   "Motor1 is open\r",
			want: map[motor.Index]motor.State{0: motor.Open},
		},
		{
			name: "several motors",
			in:   "Motor1 is open\rMotor2 is closed\rMotor8 is stop\r",
			want: map[motor.Index]motor.State{0: motor.Open, 1: motor.Close, 7: motor.Stop},
		},
		{
			name: "unrecognised text is error",
			in:   "Motor3 is jammed\r",
			want: map[motor.Index]motor.State{2: motor.Error},
		},
		{
			name: "case insensitive",
			in:   "MOTOR4 IS CLOSED\rmotor5 Is Open\r",
			want: map[motor.Index]motor.State{3: motor.Close, 4: motor.Open},
		},
		{
			name: "last write wins",
			in:   "Motor6 is open\rMotor6 is closed\r",
			want: map[motor.Index]motor.State{5: motor.Close},
		},
		{
			name: "empty fragments skipped",
			in:   "\r\rMotor2 is open\r\r",
			want: map[motor.Index]motor.State{1: motor.Open},
		},
		{
			name: "crlf line endings",
			in:   "Motor1 is open\r\nMotor2 is closed\r\n",
			want: map[motor.Index]motor.State{0: motor.Open, 1: motor.Close},
		},
		{
			name: "unterminated final fragment still parsed",
			in:   "Motor7 is open",
			want: map[motor.Index]motor.State{6: motor.Open},
		},
		{
			name: "empty buffer",
			in:   "",
			want: map[motor.Index]motor.State{},
		},
	}

	p := NewParser("\r")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := p.Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), batch.Len())
			for idx, want := range tt.want {
				got, ok := batch.Get(idx)
				assert.True(t, ok, "index %d missing", idx)
				assert.Equal(t, want, got, "index %d", idx)
			}
		})
	}
}

func TestParser_OutOfRangeMotorKeepsRestOfBatch(t *testing.T) {
	batch, err := NewParser("\r").Parse([]byte("Motor1 is open\rMotor2 is closed\rMotor9 is open\r"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeedbackParse)
	assert.ErrorIs(t, err, motor.ErrIndexOutOfRange)

	assert.Equal(t, map[int]motor.State{1: motor.Open, 2: motor.Close}, batch.ByNumber())
	_, ok := batch.Get(8)
	assert.False(t, ok)
}

func TestParser_MissingNumber(t *testing.T) {
	batch, err := NewParser("\r").Parse([]byte("Motor is open\rMotor3 is closed\rgarbage\r"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeedbackParse)

	// Two bad lines, both reported.
	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 2)

	assert.Equal(t, []motor.Index{2}, batch.Indices())
}

func TestParser_ZeroAndHugeNumbers(t *testing.T) {
	batch, err := NewParser("\r").Parse([]byte("Motor0 is open\rMotor123456789012345678901234567890 is open\r"))

	assert.ErrorIs(t, err, ErrFeedbackParse)
	assert.Equal(t, 0, batch.Len())
}

func TestParser_CustomTerminator(t *testing.T) {
	batch, err := NewParser("\n").Parse([]byte("Motor1 is open\nMotor2 is stop\n"))
	require.NoError(t, err)
	assert.Equal(t, []motor.Index{0, 1}, batch.Indices())

	assert.Equal(t, DefaultTerminator, NewParser("").terminator)
}

func TestNewBatch_DropsInvalidIndices(t *testing.T) {
	b := NewBatch(map[motor.Index]motor.State{0: motor.Open, 8: motor.Close, -1: motor.Stop})

	assert.Equal(t, 1, b.Len())
	s, ok := b.Get(0)
	assert.True(t, ok)
	assert.Equal(t, motor.Open, s)
}
