package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func parse(t *testing.T, m any) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(m, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	return s
}

func TestDatabaseModels_Tables(t *testing.T) {
	want := []string{"sim_infos", "sessions", "cars", "samples", "car_events"}
	require.Len(t, DatabaseModels, len(want))
	for i, m := range DatabaseModels {
		assert.Equal(t, want[i], parse(t, m).Table)
	}
}

func TestCar_UniquePerSession(t *testing.T) {
	s := parse(t, &Car{})
	for _, name := range []string{"SessionID", "CarID"} {
		f := s.LookUpField(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "idx_car_session_car", f.TagSettings["UNIQUEINDEX"], name)
	}
	assert.Equal(t, "car_id", s.LookUpField("CarID").DBName)
}

func TestSample_Columns(t *testing.T) {
	s := parse(t, &Sample{})

	tests := []struct {
		field  string
		column string
		index  string
	}{
		{"SessionID", "session_id", "idx_sample_session_id"},
		{"CarID", "car_id", "idx_sample_car_id"},
		{"Tick", "tick", "idx_sample_tick"},
		{"FrontUtilization", "front_utilization", ""},
		{"VX", "vx", ""},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f := s.LookUpField(tt.field)
			require.NotNil(t, f)
			assert.Equal(t, tt.column, f.DBName)
			assert.Equal(t, tt.index, f.TagSettings["INDEX"])
		})
	}
	require.Len(t, s.PrimaryFields, 1)
	assert.Equal(t, "id", s.PrimaryFields[0].DBName)
}

func TestSession_UUIDIsUnique(t *testing.T) {
	f := parse(t, &Session{}).LookUpField("UUID")
	require.NotNil(t, f)
	assert.Equal(t, "uuid", f.DBName)
	assert.Equal(t, "idx_session_uuid", f.TagSettings["UNIQUEINDEX"])
	assert.Equal(t, "36", f.TagSettings["SIZE"])
}
