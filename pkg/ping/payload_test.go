package ping

import "testing"

func TestPayload(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{size: 0, want: ""},
		{size: -1, want: ""},
		{size: 5, want: "abcde"},
		{size: 32, want: "abcdefghijklmnopqrstuvwabcdefghi"},
	}

	for _, tc := range tests {
		if got := string(Payload(tc.size)); got != tc.want {
			t.Errorf("Payload(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}
