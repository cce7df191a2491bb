package appointment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:30", want: NewClock(9, 30)},
		{in: "00:00", want: 0},
		{in: "23:59:00", want: NewClock(23, 59)},
		{in: " 7:05 ", want: NewClock(7, 5)},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:30", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "12", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockArithmetic(t *testing.T) {
	c := NewClock(11, 45)

	assert.Equal(t, "11:45", c.String())
	assert.Equal(t, NewClock(12, 15), c.Add(30*time.Minute))
	assert.Equal(t, c, c.Add(59*time.Second))
	assert.Equal(t, 45*time.Minute, NewClock(12, 30).Sub(c))
}

func TestClockJSON(t *testing.T) {
	b, err := json.Marshal(TimeSlot{StartTime: NewClock(9, 0), EndTime: NewClock(9, 30), IsAvailable: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_time":"09:00","end_time":"09:30","is_available":true}`, string(b))

	var c Clock
	require.NoError(t, json.Unmarshal([]byte(`"14:15"`), &c))
	assert.Equal(t, NewClock(14, 15), c)
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 1, ISOWeekday(monday))
	assert.Equal(t, 2, ISOWeekday(tuesday))
	assert.Equal(t, 7, ISOWeekday(sunday))
}

func TestAtUsesLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	got := At(monday, NewClock(9, 0), loc)

	assert.Equal(t, time.Date(2030, 1, 7, 2, 0, 0, 0, time.UTC), got.UTC())
	assert.Equal(t, monday, DateOf(got, loc))
}
