package entity

import "testing"

func TestTextPreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{"short", "反应温度", 10, "反应温度"},
		{"exact", "abcde", 5, "abcde"},
		{"cut runes", "催化剂活性下降", 3, "催化剂..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextPreview(tt.text, tt.n); got != tt.want {
				t.Errorf("TextPreview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileTypeFromName(t *testing.T) {
	tests := map[string]FileType{
		"manual.PDF":  FileTypePDF,
		"a.docx":      FileTypeDOCX,
		"notes.txt":   FileTypeTXT,
		"archive.zip": "",
		"noext":       "",
	}
	for name, want := range tests {
		if got := FileTypeFromName(name); got != want {
			t.Errorf("FileTypeFromName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIndexJobLifecycle(t *testing.T) {
	job := NewIndexJob("f1", true, 16)
	if !job.Recreate() {
		t.Error("Recreate() = false, want true")
	}
	job.Start()
	job.Fail("boom")
	if !job.CanRetry(3) {
		t.Error("CanRetry(3) = false after first failure")
	}
	job.Retry()
	if job.Status != JobStatusPending || job.RetryCount != 1 || job.ErrorMessage != "" {
		t.Errorf("after Retry: %+v", job)
	}
	job.Start()
	job.Complete(nil)
	if job.Status != JobStatusCompleted || job.Progress != 100 {
		t.Errorf("after Complete: status=%s progress=%d", job.Status, job.Progress)
	}
	if job.CanRetry(3) {
		t.Error("CanRetry on completed job = true")
	}
}
