package memory

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_GetIsEmpty(t *testing.T) {
	bp := NewBufferPool()
	buf := bp.Get()
	buf.WriteString("leftover")
	bp.Put(buf)

	assert.Equal(t, 0, bp.Get().Len())
}

func TestBufferPool_ReadAllCopies(t *testing.T) {
	bp := NewBufferPool()
	data, err := bp.ReadAll(strings.NewReader(`{"data":[]}`))
	require.NoError(t, err)

	other, err := bp.ReadAll(strings.NewReader("xxxxxxxxxxxxxxxxxxxxxxxxxxxxx"))
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, string(data))
	assert.Len(t, other, 29)
}

func TestBufferPool_DropsOversized(t *testing.T) {
	bp := NewBufferPoolWithLimit(16)
	big := bytes.NewBuffer(make([]byte, 0, 1024))
	assert.NotPanics(t, func() { bp.Put(big) })
}

func TestReadStats(t *testing.T) {
	s := ReadStats()
	assert.Greater(t, s.NumGoroutine, 0)
	assert.GreaterOrEqual(t, s.SysMB, s.AllocMB)
}
