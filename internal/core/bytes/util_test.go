package bytes

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormatPayload(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "empty payload",
			data: nil,
			want: "",
		},
		{
			name: "read command",
			data: []byte{'r', 0x05},
			want: "(0000) 72 05 " + strings.Repeat("   ", 14) + "  " + "    r.\n",
		},
		{
			name: "spans two lines",
			data: []byte("BbQBbQBbQBbQBbQBbQ"),
			want: "(0000) 42 62 51 42 62 51 42 62   51 42 62 51 42 62 51 42     BbQBbQBbQBbQBbQB\n" +
				"(0010) 62 51 " + strings.Repeat("   ", 14) + "  " + "    bQ\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatPayload(tt.data)); diff != "" {
				t.Errorf("FormatPayload() output did not match; diff:\n%s", diff)
			}
		})
	}
}
