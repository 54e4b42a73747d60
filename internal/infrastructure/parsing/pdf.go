package parsing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"chem-rag-api/pkg/logger"
)

// PageHeader 每页文本前的页码标记
const PageHeader = "=== 第 %d 页 ==="

func parsePDF(ctx context.Context, path string) (res *Result, err error) {
	// 损坏的 PDF 可能导致解析库 panic
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("pdf is corrupted: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrNoText)
	}

	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn(ctx, "read pdf page failed", "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(PageHeader, i)+"\n"+text)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: pdf may be scanned images", ErrNoText)
	}
	return &Result{
		Text:      strings.Join(parts, "\n\n"),
		PageCount: n,
	}, nil
}
