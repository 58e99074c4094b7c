package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPage_Clamps(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Limit: DefaultPageSize}, NewPage(0, 0))
	assert.Equal(t, Page{Number: 3, Limit: MaxPageSize}, NewPage(3, 1000))
}

func TestPage_OffsetAndTotalPages(t *testing.T) {
	p := NewPage(3, 20)
	assert.Equal(t, 40, p.Offset())
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 1, p.TotalPages(20))
	assert.Equal(t, 3, p.TotalPages(41))
}
