package util

import (
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d: %q", Wrap, line)
		}
	}
	if got := WrapString("short text"); got != "short text" {
		t.Errorf("WrapString = %q", got)
	}
}

func TestParseMembers(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		want    map[string]string
		wantErr bool
	}{
		{"empty", "", map[string]string{}, false},
		{"single", "node-1=localhost:8080", map[string]string{"node-1": "localhost:8080"}, false},
		{"multiple", "a=http://h1:1, b = h2:2", map[string]string{"a": "http://h1:1", "b": "h2:2"}, false},
		{"endpoint with equals", "a=/tmp/x=y.sock", map[string]string{"a": "/tmp/x=y.sock"}, false},
		{"missing endpoint", "a=", nil, true},
		{"missing name", "=h:1", nil, true},
		{"no separator", "a", nil, true},
		{"duplicate", "a=h:1,a=h:2", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMembers(tt.list)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMembers() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseMembers() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("member %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
