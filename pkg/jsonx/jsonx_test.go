package jsonx

import (
	"errors"
	"testing"

	kberrors "github.com/docdraft/docdraft/errors"
)

func TestFirstExtractsBalancedObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain object",
			raw:  `{"intent":"cancel"}`,
			want: `{"intent":"cancel"}`,
		},
		{
			name: "object with prose around it",
			raw:  "Sure, here you go: {\"data\": {\"city\": \"Almaty\"}} hope that helps!",
			want: `{"data": {"city": "Almaty"}}`,
		},
		{
			name: "fenced block",
			raw:  "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "braces inside string values",
			raw:  `{"note": "use {tag} as placeholder"}`,
			want: `{"note": "use {tag} as placeholder"}`,
		},
		{
			name: "array value",
			raw:  `answer: [{"tag":"city","question":"Where?"}]`,
			want: `[{"tag":"city","question":"Where?"}]`,
		},
		{
			name: "escaped quotes",
			raw:  `{"v": "say \"hi\" {"}`,
			want: `{"v": "say \"hi\" {"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := First(tt.raw)
			if err != nil {
				t.Fatalf("First() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("First() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstRejectsNonJSON(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{\"unterminated\": "} {
		if _, err := First(raw); !errors.Is(err, kberrors.ErrMalformedOutput) {
			t.Errorf("First(%q) error = %v, want ErrMalformedOutput", raw, err)
		}
	}
}

func TestDecodeValidatesShape(t *testing.T) {
	type payload struct {
		Data map[string]string `json:"data"`
	}

	out, err := Decode[payload]("prefix {\"data\":{\"tag\":\"value\"}} suffix")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if out.Data["tag"] != "value" {
		t.Errorf("Decode() data = %v, want tag=value", out.Data)
	}

	if _, err := Decode[payload](`{"data": "not an object"}`); !errors.Is(err, kberrors.ErrMalformedOutput) {
		t.Errorf("Decode() with wrong shape error = %v, want ErrMalformedOutput", err)
	}
}
