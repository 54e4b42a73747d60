package repository

import "testing"

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
		wantOffset         int
	}{
		{0, 0, 1, 20, 0},
		{3, 10, 3, 10, 20},
		{2, 500, 2, 100, 100},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.size)
		if p.Page != tt.wantPage || p.PageSize != tt.wantSize || p.Offset() != tt.wantOffset {
			t.Errorf("NewPagination(%d, %d) = %+v offset %d, want page %d size %d offset %d",
				tt.page, tt.size, p, p.Offset(), tt.wantPage, tt.wantSize, tt.wantOffset)
		}
	}
}

func TestNewPagedResultTotalPages(t *testing.T) {
	tests := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
	}
	for _, tt := range tests {
		r := NewPagedResult([]int{}, tt.total, NewPagination(1, tt.size))
		if r.TotalPages != tt.want {
			t.Errorf("TotalPages(total=%d,size=%d) = %d, want %d", tt.total, tt.size, r.TotalPages, tt.want)
		}
	}
}
