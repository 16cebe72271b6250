package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswers(t *testing.T) {
	tests := map[string]struct {
		raw        []string
		expAnswers map[string]string
		expErr     bool
	}{
		"No answers should return an empty map": {
			expAnswers: map[string]string{},
		},
		"KEY=VALUE should parse": {
			raw:        []string{"sponsorship=no", "salary=90000"},
			expAnswers: map[string]string{"sponsorship": "no", "salary": "90000"},
		},
		"Values can have equal signs and be empty": {
			raw:        []string{"formula=a=b", "notes="},
			expAnswers: map[string]string{"formula": "a=b", "notes": ""},
		},
		"Later entries should override earlier ones": {
			raw:        []string{"sponsorship=yes", "sponsorship=no"},
			expAnswers: map[string]string{"sponsorship": "no"},
		},
		"Missing value separator should fail": {
			raw:    []string{"sponsorship"},
			expErr: true,
		},
		"Empty key should fail": {
			raw:    []string{" =no"},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			answers, err := parseAnswers(tc.raw)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expAnswers, answers)
		})
	}
}
