package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func numbers(items []PageItem) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		if it.Ellipsis {
			out = append(out, 0)
			continue
		}
		out = append(out, it.Number)
	}
	return out
}

func TestPageStrip(t *testing.T) {
	cases := []struct {
		name  string
		page  int
		total int
		want  []int
	}{
		{"no pages", 1, 0, []int{}},
		{"single", 1, 1, []int{1}},
		{"five shown in full", 3, 5, []int{1, 2, 3, 4, 5}},
		{"four shown in full", 4, 4, []int{1, 2, 3, 4}},
		{"middle of ten", 5, 10, []int{1, 0, 4, 5, 6, 0, 10}},
		{"first of ten", 1, 10, []int{1, 2, 0, 10}},
		{"second of ten", 2, 10, []int{1, 2, 3, 0, 10}},
		{"third of ten", 3, 10, []int{1, 2, 3, 4, 0, 10}},
		{"near end", 9, 10, []int{1, 0, 8, 9, 10}},
		{"last", 10, 10, []int{1, 0, 9, 10}},
		{"six pages", 4, 6, []int{1, 0, 3, 4, 5, 6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, numbers(PageStrip(tc.page, tc.total)))
		})
	}
}

func TestPageStripMarksCurrent(t *testing.T) {
	items := PageStrip(5, 10)
	var current []int
	for _, it := range items {
		if it.Current {
			current = append(current, it.Number)
		}
	}
	assert.Equal(t, []int{5}, current)
}

func TestPageStripBeyondLastPage(t *testing.T) {
	assert.Equal(t, []int{1, 0, 10}, numbers(PageStrip(12, 10)))
}

func TestNewPager(t *testing.T) {
	p := NewPager(1, 3)
	assert.False(t, p.HasPrev)
	assert.True(t, p.HasNext)

	p = NewPager(3, 3)
	assert.True(t, p.HasPrev)
	assert.False(t, p.HasNext)

	p = NewPager(1, 0)
	assert.False(t, p.HasPrev)
	assert.False(t, p.HasNext)
	assert.Empty(t, p.Items)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)
}
