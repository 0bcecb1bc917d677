package tools

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davmutate/errs"
)

func argsOf(t *testing.T, raw string) Args {
	t.Helper()
	var a Args
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	return a
}

func TestArgsString(t *testing.T) {
	a := argsOf(t, `{"title":"  Standup ","location":null,"count":3}`)

	title, err := a.String("title")
	require.NoError(t, err)
	assert.Equal(t, "Standup", title.MustGet())

	loc, err := a.String("location")
	require.NoError(t, err)
	assert.True(t, loc.IsPresent(), "null is an explicit clear")
	assert.Equal(t, "", loc.OrEmpty())

	missing, err := a.String("description")
	require.NoError(t, err)
	assert.True(t, missing.IsAbsent())

	_, err = a.String("count")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestArgsStrings(t *testing.T) {
	a := argsOf(t, `{"one":"a@example.com","many":["x"," ","y "],"empty":"","bad":[1]}`)

	one, err := a.Strings("one")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, one.MustGet())

	many, err := a.Strings("many")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, many.MustGet())

	empty, err := a.Strings("empty")
	require.NoError(t, err)
	assert.Empty(t, empty.MustGet())

	_, err = a.Strings("bad")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestArgsTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	a := argsOf(t, `{"rfc":"2024-03-04T09:00:00Z","local":"2024-03-04T10:00","date":"2024-03-04","bad":"tomorrow"}`)

	rfc, err := a.Time("rfc", berlin)
	require.NoError(t, err)
	assert.True(t, rfc.MustGet().Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)))

	local, err := a.Time("local", berlin)
	require.NoError(t, err)
	assert.True(t, local.MustGet().Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)))

	date, err := a.Time("date", berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, berlin).Unix(), date.MustGet().Unix())
	assert.True(t, dateOnly(a, "date"))
	assert.False(t, dateOnly(a, "local"))

	_, err = a.Time("bad", berlin)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestArgsMinutes(t *testing.T) {
	a := argsOf(t, `{"ok":[15,1440],"neg":[-5]}`)

	ok, err := a.Minutes("ok")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{15 * time.Minute, 24 * time.Hour}, ok.MustGet())

	_, err = a.Minutes("neg")
	assert.ErrorIs(t, err, errs.ErrValidation)

	absent, err := a.Minutes("none")
	require.NoError(t, err)
	assert.True(t, absent.IsAbsent())
}

func TestParseArgs(t *testing.T) {
	params := []Param{{Name: "uid", Required: true}, {Name: "title"}}

	_, err := parseArgs([]byte(`{"uid":"a","colour":"red"}`), params)
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "colour", verr.Field)

	_, err = parseArgs([]byte(`{"uid":null}`), params)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "uid", verr.Field)

	_, err = parseArgs([]byte(`[1,2]`), params)
	assert.ErrorIs(t, err, errs.ErrValidation)

	args, err := parseArgs([]byte(`{"uid":"a"}`), params)
	require.NoError(t, err)
	assert.Len(t, args, 1)
}
