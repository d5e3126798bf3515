package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineFramer(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single complete line",
			chunks: []string{"Motor1 is open\r"},
			want:   []string{"Motor1 is open\r"},
		},
		{
			name:   "batched lines delivered together",
			chunks: []string{"Motor1 is open\rMotor2 is closed\r"},
			want:   []string{"Motor1 is open\rMotor2 is closed\r"},
		},
		{
			name:   "line split across reads",
			chunks: []string{"Motor3 is ", "closed\r"},
			want:   []string{"", "Motor3 is closed\r"},
		},
		{
			name:   "tail held for next read",
			chunks: []string{"Motor1 is open\rMot", "or2 is stop\r"},
			want:   []string{"Motor1 is open\r", "Motor2 is stop\r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLineFramer("\r", 4096)
			for i, chunk := range tt.chunks {
				assert.Equal(t, tt.want[i], string(f.push([]byte(chunk))), "chunk %d", i)
			}
		})
	}
}

func TestLineFramer_Overflow(t *testing.T) {
	f := newLineFramer("\r", 8)

	assert.Nil(t, f.push([]byte("abcd")))
	assert.Equal(t, "abcdefgh", string(f.push([]byte("efgh"))))
	assert.Equal(t, "x\r", string(f.push([]byte("x\r"))))
}

func TestLineFramer_MultiByteTerminator(t *testing.T) {
	f := newLineFramer("\r\n", 4096)

	assert.Nil(t, f.push([]byte("Motor1 is open\r")))
	assert.Equal(t, "Motor1 is open\r\n", string(f.push([]byte("\n"))))

	f.push([]byte("partial"))
	f.reset()
	assert.Equal(t, "Motor2 is closed\r\n", string(f.push([]byte("Motor2 is closed\r\n"))))
}
