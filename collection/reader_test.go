package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davmutate/cache"
	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/errs"
)

func handle(collection davclient.CollectionInfo, uid string) davclient.ResourceHandle {
	return davclient.ResourceHandle{UID: uid, URL: collection.URL + uid + ".ics", ETag: `"` + uid + `-1"`, Data: "BEGIN:VCALENDAR"}
}

func TestListUsesCacheWhileTokenUnchanged(t *testing.T) {
	m := &davclient.MockDAVClient{}
	m.On("CollectionToken", mock.Anything, work.URL).Return("ctag-1", nil)
	m.On("FetchResources", mock.Anything, work.URL, davclient.Query{Kind: davclient.KindCalendar}).
		Return([]davclient.ResourceHandle{handle(work, "standup")}, nil).Once()

	c := cache.New(nil, cache.Config{}, nil)
	r := NewReader(m, c, davclient.KindCalendar, nil)

	for i := 0; i < 3; i++ {
		got, err := r.List(context.Background(), work.URL)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	m.AssertNumberOfCalls(t, "FetchResources", 1)
	assert.Equal(t, uint64(2), c.Stats().Hits)
}

func TestListRefetchesAfterInvalidation(t *testing.T) {
	m := &davclient.MockDAVClient{}
	m.On("CollectionToken", mock.Anything, work.URL).Return("ctag-1", nil)
	m.On("FetchResources", mock.Anything, work.URL, mock.Anything).
		Return([]davclient.ResourceHandle{handle(work, "standup")}, nil).Once()
	m.On("FetchResources", mock.Anything, work.URL, mock.Anything).
		Return([]davclient.ResourceHandle{}, nil).Once()

	c := cache.New(nil, cache.Config{}, nil)
	r := NewReader(m, c, davclient.KindCalendar, nil)

	got, err := r.List(context.Background(), work.URL)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	c.Invalidate(work.URL)
	got, err = r.List(context.Background(), work.URL)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindByUID(t *testing.T) {
	m := &davclient.MockDAVClient{}
	m.On("CollectionToken", mock.Anything, mock.Anything).Return("", nil)
	m.On("FetchResources", mock.Anything, personal.URL, mock.Anything).
		Return([]davclient.ResourceHandle{handle(personal, "dentist")}, nil)
	m.On("FetchResources", mock.Anything, work.URL, mock.Anything).
		Return([]davclient.ResourceHandle{handle(work, "standup"), handle(work, "retro")}, nil)

	r := NewReader(m, cache.New(nil, cache.Config{}, nil), davclient.KindCalendar, nil)

	found, err := r.FindByUID(context.Background(), []davclient.CollectionInfo{personal, work}, "retro")
	require.NoError(t, err)
	assert.Equal(t, work.URL+"retro.ics", found.Handle.URL)
	assert.Equal(t, work, found.Collection)

	_, err = r.FindByUID(context.Background(), []davclient.CollectionInfo{personal, work}, "missing")
	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"Personal", "Work"}, notFound.Collections)

	_, err = r.FindByUID(context.Background(), []davclient.CollectionInfo{work}, "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestFindByUIDToleratesFailingCollection(t *testing.T) {
	boom := errors.New("server error")
	m := &davclient.MockDAVClient{}
	m.On("CollectionToken", mock.Anything, personal.URL).Return("", boom)
	m.On("CollectionToken", mock.Anything, work.URL).Return("", nil)
	m.On("FetchResources", mock.Anything, work.URL, mock.Anything).
		Return([]davclient.ResourceHandle{handle(work, "standup")}, nil)

	r := NewReader(m, cache.New(nil, cache.Config{}, nil), davclient.KindCalendar, nil)

	found, err := r.FindByUID(context.Background(), []davclient.CollectionInfo{personal, work}, "standup")
	require.NoError(t, err)
	assert.Equal(t, "standup", found.Handle.UID)

	_, err = r.FindByUID(context.Background(), []davclient.CollectionInfo{personal, work}, "missing")
	assert.ErrorIs(t, err, boom, "a failed read must not be reported as not found")
}

func TestListRange(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	q := davclient.Query{Kind: davclient.KindCalendar, Start: start, End: end}

	m := &davclient.MockDAVClient{}
	m.On("FetchResources", mock.Anything, personal.URL, q).Return([]davclient.ResourceHandle{handle(personal, "a")}, nil)
	m.On("FetchResources", mock.Anything, work.URL, q).Return([]davclient.ResourceHandle{handle(work, "b"), handle(work, "c")}, nil)

	r := NewReader(m, cache.New(nil, cache.Config{}, nil), davclient.KindCalendar, nil)
	got, err := r.ListRange(context.Background(), []davclient.CollectionInfo{personal, work}, start, end)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Handle.UID)
	assert.Equal(t, work, got[2].Collection)

	_, err = r.ListRange(context.Background(), []davclient.CollectionInfo{work}, end, start)
	assert.ErrorIs(t, err, errs.ErrValidation)
}
