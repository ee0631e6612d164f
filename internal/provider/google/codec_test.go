package google

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/provider"
)

func TestCodec_DecodeStatus(t *testing.T) {
	tests := []struct {
		native  string
		want    event.Status
		wantErr bool
	}{
		{native: "confirmed", want: event.StatusConfirmed},
		{native: "tentative", want: event.StatusTentative},
		{native: "cancelled", want: event.StatusCancelled},
		{native: "maybe", wantErr: true},
		{native: "", want: event.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			e, err := Codec{}.Decode(&calendar.Event{
				Id:     "evt",
				Status: tt.native,
				Start:  &calendar.EventDateTime{DateTime: "2025-06-01T10:00:00Z"},
				End:    &calendar.EventDateTime{DateTime: "2025-06-01T11:00:00Z"},
			})
			if tt.wantErr {
				var derr *provider.DecodeError
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, "status", derr.Field)
				assert.Equal(t, tt.native, derr.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Status)
			assert.Equal(t, event.SourceGoogle, e.Source)
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	original := event.Event{
		Title:       "Planning",
		Description: "Quarterly planning",
		Location:    "Room 4",
		StartTime:   time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		Status:      event.StatusConfirmed,
	}

	for _, codec := range []Codec{{}, {Location: berlin}} {
		native := codec.Encode(original)
		decoded, err := codec.Decode(native)
		require.NoError(t, err)

		assert.Equal(t, original.Title, decoded.Title)
		assert.Equal(t, original.Description, decoded.Description)
		assert.Equal(t, original.Location, decoded.Location)
		assert.True(t, original.StartTime.Equal(decoded.StartTime), "start %v != %v", original.StartTime, decoded.StartTime)
		assert.True(t, original.EndTime.Equal(decoded.EndTime), "end %v != %v", original.EndTime, decoded.EndTime)
		assert.False(t, decoded.AllDay)
	}
}

func TestCodec_EncodeTimeZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	native := Codec{Location: berlin}.Encode(event.Event{
		StartTime: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "2025-06-01T10:00:00+02:00", native.Start.DateTime)
	assert.Equal(t, "Europe/Berlin", native.Start.TimeZone)
	assert.Empty(t, native.Start.Date)
}

func TestCodec_AllDay(t *testing.T) {
	e := event.Event{
		Title:     "Offsite",
		StartTime: event.Date(2025, 7, 14),
		EndTime:   event.Date(2025, 7, 16),
		AllDay:    true,
		Status:    event.StatusTentative,
	}

	native := Codec{}.Encode(e)
	assert.Equal(t, "2025-07-14", native.Start.Date)
	assert.Equal(t, "2025-07-16", native.End.Date)
	assert.Empty(t, native.Start.DateTime)

	decoded, err := Codec{}.Decode(native)
	require.NoError(t, err)
	assert.True(t, decoded.AllDay)
	assert.Equal(t, e.StartTime, decoded.StartTime)
	assert.Equal(t, e.EndTime, decoded.EndTime)
}

func TestCodec_AllDaySingleDay(t *testing.T) {
	native := Codec{}.Encode(event.Event{StartTime: event.Date(2025, 1, 1), AllDay: true})
	assert.Equal(t, "2025-01-01", native.Start.Date)
	assert.Equal(t, "2025-01-02", native.End.Date)
}

func TestCodec_EncodeStatus(t *testing.T) {
	assert.Equal(t, "cancelled", Codec{}.Encode(event.Event{Status: event.StatusCancelled}).Status)
	assert.Empty(t, Codec{}.Encode(event.Event{Status: event.StatusBusy}).Status)
	assert.Empty(t, Codec{}.Encode(event.Event{}).Status)
}

func TestCodec_DecodeMalformed(t *testing.T) {
	_, err := Codec{}.Decode(&calendar.Event{
		Status: "confirmed",
		Start:  &calendar.EventDateTime{DateTime: "yesterday"},
	})
	var derr *provider.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "start", derr.Field)

	_, err = Codec{}.Decode(nil)
	assert.ErrorAs(t, err, &derr)
}
