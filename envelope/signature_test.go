package envelope

import (
	"reflect"
	"testing"
)

func TestStripSignature(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		maxLines int
		want     []string
	}{
		{
			name:     "simple trailing signature",
			lines:    []string{"Huhu", "--", "Ikke"},
			maxLines: defaultMaxSignatureLines,
			want:     []string{"Huhu"},
		},
		{
			name: "stacked footers within threshold",
			lines: []string{
				"Huhu", "--", "Ikke", "**",
				"Sponsored by PowerDoh'",
				"Sponsored by PowerDoh'",
				"Sponsored by PowerDoh'",
				"Sponsored by PowerDoh'",
				"Sponsored by PowerDoh'",
			},
			maxLines: 5,
			want:     []string{"Huhu"},
		},
		{
			name:     "no delimiter leaves lines unchanged",
			lines:    []string{"one", "two", "three"},
			maxLines: defaultMaxSignatureLines,
			want:     []string{"one", "two", "three"},
		},
		{
			name:     "delimiter beyond threshold is ignored",
			lines:    []string{"--", "a", "b", "c", "d", "e", "f"},
			maxLines: 5,
			want:     []string{"--", "a", "b", "c", "d", "e", "f"},
		},
		{
			name:     "all delimiter variants match",
			lines:    []string{"keep", "__ sig"},
			maxLines: defaultMaxSignatureLines,
			want:     []string{"keep"},
		},
		{
			name:     "empty input",
			lines:    []string{},
			maxLines: defaultMaxSignatureLines,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripSignature(tt.lines, tt.maxLines)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("stripSignature(%v, %d) = %v, want %v",
					tt.lines, tt.maxLines, got, tt.want)
			}
		})
	}
}
