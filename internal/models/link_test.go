package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt64ListContains(t *testing.T) {
	list := Int64List{1, 2, 3}
	assert.True(t, list.Contains(2))
	assert.False(t, list.Contains(4))
	assert.False(t, Int64List(nil).Contains(1))
}

func TestInt64ListWithout(t *testing.T) {
	list := Int64List{1, 2, 3, 2}

	got := list.Without(2)
	assert.Equal(t, Int64List{1, 3, 2}, got, "only the first occurrence is removed")
	assert.Equal(t, Int64List{1, 2, 3, 2}, list, "original list untouched")

	assert.Equal(t, Int64List{1, 2, 3, 2}, list.Without(9))
}
