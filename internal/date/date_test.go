package date

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  Date
		expectErr bool
	}{
		{name: "ISO", input: "2024-01-01", expected: New(2024, time.January, 1)},
		{name: "Single digit month and day", input: "2025-7-1", expected: New(2025, time.July, 1)},
		{name: "Day first is rejected", input: "01-02-2024", expectErr: true},
		{name: "Garbage", input: "yesterday", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Parse(tc.input)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, d)
		})
	}
}

func TestParseSource(t *testing.T) {
	d, err := ParseSource("02-01-2025")
	require.NoError(t, err)
	assert.Equal(t, New(2025, time.January, 2), d)

	_, err = ParseSource("2025-01-02")
	assert.Error(t, err)
}

func TestDaysSince(t *testing.T) {
	buy := MustParse("2024-01-01")

	assert.Equal(t, 367, MustParse("2025-01-02").DaysSince(buy))
	assert.Equal(t, 215, MustParse("2025-01-02").DaysSince(MustParse("2024-06-01")))
	assert.Equal(t, 366, buy.Add(366).DaysSince(buy), "2024 is a leap year")
	assert.Equal(t, -1, buy.Add(-1).DaysSince(buy))
}

func TestNewNormalizes(t *testing.T) {
	assert.Equal(t, MustParse("2024-03-01"), New(2024, time.February, 30))
	assert.Equal(t, 0, New(2024, time.February, 30).Compare(MustParse("2024-03-01")))
	assert.True(t, MustParse("2024-02-29").Before(MustParse("2024-03-01")))
	assert.True(t, MustParse("2024-03-01").After(MustParse("2024-02-29")))
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		On Date `json:"on"`
	}

	out, err := json.Marshal(wrapper{On: New(2024, time.June, 1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2024-06-01"}`, string(out))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"on":"2024-6-1"}`), &w))
	assert.Equal(t, New(2024, time.June, 1), w.On)

	assert.Error(t, json.Unmarshal([]byte(`{"on":"not a date"}`), &w))
}
