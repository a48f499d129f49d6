package normalize

import "testing"

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{
			name:  "integer major units",
			value: 45,
			want:  4500,
		},
		{
			name:  "float major units",
			value: 19.99,
			want:  1999,
		},
		{
			name:  "float rounds half away from zero",
			value: 19.995,
			want:  2000,
		},
		{
			name:  "decimal string is major units",
			value: "19.995",
			want:  2000,
		},
		{
			name:  "decimal string plain",
			value: "12.50",
			want:  1250,
		},
		{
			name:  "bare integer string is already minor units",
			value: "4500",
			want:  4500,
		},
		{
			name:  "negative float",
			value: -10.255,
			want:  -1026,
		},
		{
			name:  "unparseable string",
			value: "free",
			want:  0,
		},
		{
			name:  "empty string",
			value: "",
			want:  0,
		},
		{
			name:  "nil",
			value: nil,
			want:  0,
		},
		{
			name:  "unsupported type",
			value: []string{"10"},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToMinorUnits(tt.value); got != tt.want {
				t.Errorf("ToMinorUnits(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}
