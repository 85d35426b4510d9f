package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapper(t *testing.T) {
	t.Run("assigns dense ids in order of first sighting", func(t *testing.T) {
		m := NewMapper()
		assert.Equal(t, Id(0), m.GetOrInsert("a"))
		assert.Equal(t, Id(1), m.GetOrInsert("b"))
		assert.Equal(t, Id(0), m.GetOrInsert("a"))
		assert.Equal(t, 2, m.Len())
	})

	t.Run("get does not insert", func(t *testing.T) {
		m := NewMapper()
		_, ok := m.Get("missing")
		assert.False(t, ok)
		assert.Equal(t, 0, m.Len())
	})

	t.Run("name reverses id to key", func(t *testing.T) {
		m := NewMapper()
		id := m.GetOrInsert("stop_42")
		name, ok := m.Name(id)
		assert.True(t, ok)
		assert.Equal(t, "stop_42", name)

		_, ok = m.Name(Id(99))
		assert.False(t, ok)
	})
}
