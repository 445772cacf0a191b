package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: at})
	require.NoError(t, err)

	c, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", c.ID)
	assert.True(t, at.Equal(c.CreatedAt))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	_, err = DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestPageTrimsExtraRow(t *testing.T) {
	cursorOf := func(v int) Cursor { return Cursor{ID: string(rune('a' + v))} }

	rows, info, err := Page([]int{1, 2, 3}, 2, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "c", next.ID)

	rows, info, err = Page([]int{1}, 2, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rows)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestSizeClamps(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Size())
}
