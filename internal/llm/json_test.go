package llm

import "testing"

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"uppercase tag", "```JSON\n[1,2]\n```", `[1,2]`},
		{"no language tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{}\n```  ", `{}`},
		{"fence glued to payload", "```{\"a\":1}```", `{"a":1}`},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := StripFences(c.in); got != c.want {
				t.Errorf("StripFences(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
