package securemem

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_RevealRoundTrip(t *testing.T) {
	s, err := FromString("deadbeef")
	require.NoError(t, err)
	defer s.Destroy()

	got, err := s.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", got)
	assert.Equal(t, 8, s.Len())
	assert.Equal(t, []byte("deadbeef"), s.Bytes())
}

func TestSecret_NewCopiesInput(t *testing.T) {
	src := []byte("abc")
	s, err := New(src)
	require.NoError(t, err)
	defer s.Destroy()

	Wipe(src)
	assert.Equal(t, []byte{0, 0, 0}, src)
	assert.Equal(t, []byte("abc"), s.Bytes())
}

func TestSecret_Redacted(t *testing.T) {
	s, err := FromString("top-secret")
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, "[redacted]", s.String())
	assert.Equal(t, "[redacted]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[redacted]", fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("%s", s), "top-secret")

	_, err = json.Marshal(s)
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestSecret_Destroy(t *testing.T) {
	s, err := FromString("value")
	require.NoError(t, err)

	s.Destroy()
	s.Destroy()

	assert.Nil(t, s.Bytes())
	_, err = s.Reveal()
	assert.ErrorIs(t, err, ErrDestroyed)

	_, err = s.Clone()
	assert.ErrorIs(t, err, ErrDestroyed)

	var nilSecret *Secret
	nilSecret.Destroy()
}

func TestSecret_Equal(t *testing.T) {
	a, err := FromString("same")
	require.NoError(t, err)
	defer a.Destroy()
	b, err := FromString("same")
	require.NoError(t, err)
	defer b.Destroy()
	c, err := FromString("diff")
	require.NoError(t, err)
	defer c.Destroy()

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestSecret_Clone(t *testing.T) {
	a, err := FromString("clone-me")
	require.NoError(t, err)

	b, err := a.Clone()
	require.NoError(t, err)
	defer b.Destroy()

	a.Destroy()
	got, err := b.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "clone-me", got)
}

func TestSecret_Empty(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, 0, s.Len())
	got, err := s.Reveal()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSecret_LargerThanPage(t *testing.T) {
	big := make([]byte, 10000)
	for i := range big {
		big[i] = byte(i)
	}
	s, err := New(big)
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, big, s.Bytes())
}
