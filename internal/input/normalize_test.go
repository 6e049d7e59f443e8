package input

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input   string
		literal bool
		want    string
	}{
		{"abc", true, "abc"},
		{"a<b", true, "a<LT>b"},
		{"<Esc>", true, "<LT>Esc>"},
		{"a\nb", true, "a<CR>b"},
		{"a\r\nb", true, "a<CR>b"},
		{"a\rb", true, "a<CR>b"},
		{"a\nb", false, "a\nb"},
		{"<CR>", false, "<LT>CR>"},
		{"\t\x01", true, "\t\x01"},
		{"héllo", true, "héllo"},
		{"", true, ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input, tt.literal); got != tt.want {
			t.Errorf("Normalize(%q, %v) = %q, want %q", tt.input, tt.literal, got, tt.want)
		}
	}
}
