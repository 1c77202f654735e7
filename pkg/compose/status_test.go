package compose

import (
	"slices"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"whitespace", "  \n", nil, false},
		{"array", `[{"Name":"a-1","Service":"a"},{"Name":"b-1","Service":"b"}]`, []string{"a", "b"}, false},
		{"json lines", "{\"Name\":\"a-1\",\"Service\":\"a\"}\n\n{\"Name\":\"b-1\",\"Service\":\"b\"}\n", []string{"a", "b"}, false},
		{"bad array", `[{"Name":`, nil, true},
		{"bad line", "{\"Name\":\"a-1\"}\nnot json\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Error("Expected a parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus() error: %v", err)
			}

			var services []string
			for _, s := range got {
				services = append(services, s.Service)
			}
			if !slices.Equal(services, tt.want) {
				t.Errorf("services = %v, want %v", services, tt.want)
			}
		})
	}
}

func TestFormatPorts(t *testing.T) {
	tests := []struct {
		name string
		pubs []Publisher
		want string
	}{
		{"none", nil, "N/A"},
		{"unpublished only", []Publisher{{TargetPort: 80}}, "N/A"},
		{"single", []Publisher{{PublishedPort: 8080, TargetPort: 80, Protocol: "tcp"}}, "8080->80"},
		{"multiple with udp", []Publisher{
			{PublishedPort: 8080, TargetPort: 80, Protocol: "tcp"},
			{TargetPort: 9000},
			{PublishedPort: 5353, TargetPort: 53, Protocol: "udp"},
		}, "8080->80, 5353->53/udp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPorts(tt.pubs); got != tt.want {
				t.Errorf("FormatPorts() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRowPlaceholders(t *testing.T) {
	want := []string{"N/A", "N/A", "N/A", "N/A", "N/A"}
	if got := (ContainerStatus{}).Row(); !slices.Equal(got, want) {
		t.Errorf("Row() = %v, want %v", got, want)
	}
}
