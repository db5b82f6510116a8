package cache

import "testing"

func TestParseEntries(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{"single", []string{"a=1"}, map[string]string{"a": "1"}, false},
		{"empty value", []string{"a="}, map[string]string{"a": ""}, false},
		{"value with equals", []string{"a=b=c", "d=4"}, map[string]string{"a": "b=c", "d": "4"}, false},
		{"missing separator", []string{"a"}, nil, true},
		{"missing key", []string{"=1"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEntries(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEntries() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseEntries() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if string(got[k]) != v {
					t.Errorf("entry %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestPrintable(t *testing.T) {
	if got := printable(nil); got != "<nil>" {
		t.Errorf("printable(nil) = %q", got)
	}
	if got := printable([]byte{}); got != "" {
		t.Errorf("printable(empty) = %q", got)
	}
}
