package strictyaml

import (
	"testing"

	"github.com/querysafe/querysafe/test"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

func TestUnmarshal(t *testing.T) {
	var c testConfig
	err := Unmarshal([]byte("name: reporting\nlimit: 3\n"), &c)
	test.AssertNotError(t, err, "decoding valid config")
	test.AssertEquals(t, c.Name, "reporting")
	test.AssertEquals(t, c.Limit, 3)
}

func TestUnmarshalRejects(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{"unknown key", "name: reporting\nlimt: 3\n"},
		{"empty", ""},
		{"two documents", "name: a\n---\nname: b\n"},
		{"wrong type", "limit: many\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var c testConfig
			err := Unmarshal([]byte(tc.in), &c)
			test.AssertError(t, err, "decoding should have failed")
		})
	}
}
