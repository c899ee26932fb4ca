package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	original := []*Envelope{
		New("00000000-0000-0000-0000-000000000000", NameRequest),
		New("00000000-0000-0000-0000-000000000000", NameRemoteDependency),
	}
	original[0].Time = FormatTime(time.Unix(0, 1575494316027613500))
	original[0].Tags[TagOperationID] = "1bbd944a73a05d89eab5d3740a213ee7"
	original[0].Data = &Data{
		BaseType: BaseTypeRequest,
		BaseData: map[string]any{"id": "a6f5d48acb4d31d9"},
	}

	for _, e := range original {
		data, err := Marshal([]*Envelope{e})
		require.NoError(t, err)

		got, err := Unmarshal(data)
		require.NoError(t, err)
		require.Len(t, got, 1)

		assert.Equal(t, e.Ver, got[0].Ver)
		assert.Equal(t, e.Name, got[0].Name)
		assert.Equal(t, e.Time, got[0].Time)
		assert.Equal(t, e.IKey, got[0].IKey)
		assert.Equal(t, e.Tags, got[0].Tags)
	}
}

func TestFormatTime(t *testing.T) {
	got := FormatTime(time.Unix(0, 1575494316027613500))
	assert.Equal(t, "2019-12-04T21:18:36.027Z", got)
}

func TestUnmarshalInvalid(t *testing.T) {
	_, err := Unmarshal([]byte(`not json`))
	require.Error(t, err)
}
