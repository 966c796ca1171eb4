package schedule

import (
	"testing"
	"time"

	"github.com/jamsession/api/internal/model"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(h int) time.Time { return now.Add(time.Duration(h) * time.Hour) }

func TestCheck(t *testing.T) {
	existing := []model.Jam{
		{ID: 1, HostID: 10, VenueLocation: "Hall A", StartTime: at(24), EndTime: at(27)},
		{ID: 2, HostID: 20, VenueLocation: "Basement", StartTime: at(48), EndTime: at(50)},
	}

	tests := []struct {
		name   string
		c      Candidate
		hostID int64
		want   Verdict
	}{
		{
			name:   "free slot",
			c:      Candidate{VenueLocation: "Hall B", StartTime: at(24), EndTime: at(26)},
			hostID: 30,
			want:   None,
		},
		{
			name:   "start in the past",
			c:      Candidate{VenueLocation: "Hall B", StartTime: at(-1), EndTime: at(2)},
			hostID: 30,
			want:   InvalidSchedule,
		},
		{
			name:   "start equal to now",
			c:      Candidate{VenueLocation: "Hall B", StartTime: now, EndTime: at(2)},
			hostID: 30,
			want:   InvalidSchedule,
		},
		{
			name:   "end before start",
			c:      Candidate{VenueLocation: "Hall B", StartTime: at(5), EndTime: at(4)},
			hostID: 30,
			want:   InvalidSchedule,
		},
		{
			name:   "end equal to start",
			c:      Candidate{VenueLocation: "Hall B", StartTime: at(5), EndTime: at(5)},
			hostID: 30,
			want:   InvalidSchedule,
		},
		{
			name:   "same venue same start",
			c:      Candidate{VenueLocation: "Hall A", StartTime: at(24), EndTime: at(25)},
			hostID: 30,
			want:   VenueConflict,
		},
		{
			name:   "same venue different start",
			c:      Candidate{VenueLocation: "Hall A", StartTime: at(25), EndTime: at(26)},
			hostID: 30,
			want:   None,
		},
		{
			name:   "venue wins over host overlap",
			c:      Candidate{VenueLocation: "Hall A", StartTime: at(24), EndTime: at(25)},
			hostID: 10,
			want:   VenueConflict,
		},
		{
			name:   "host starts inside own jam",
			c:      Candidate{VenueLocation: "Elsewhere", StartTime: at(25), EndTime: at(26)},
			hostID: 10,
			want:   HostDoubleBooking,
		},
		{
			name:   "host starts at own jam start",
			c:      Candidate{VenueLocation: "Elsewhere", StartTime: at(24), EndTime: at(26)},
			hostID: 10,
			want:   HostDoubleBooking,
		},
		{
			name:   "host starts exactly at own jam end",
			c:      Candidate{VenueLocation: "Elsewhere", StartTime: at(27), EndTime: at(28)},
			hostID: 10,
			want:   None,
		},
		{
			name:   "other host overlapping is fine",
			c:      Candidate{VenueLocation: "Elsewhere", StartTime: at(25), EndTime: at(26)},
			hostID: 20,
			want:   None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.c, tt.hostID, existing, now))
		})
	}
}

func TestCheckComparesInstantsNotZones(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	existing := []model.Jam{{VenueLocation: "Hall A", StartTime: at(24), EndTime: at(25), HostID: 1}}
	c := Candidate{VenueLocation: "Hall A", StartTime: at(24).In(loc), EndTime: at(25).In(loc)}
	assert.Equal(t, VenueConflict, Check(c, 2, existing, now))
}
