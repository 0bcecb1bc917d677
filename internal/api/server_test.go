package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/tools"
)

func testRegistry() *tools.Registry {
	r := tools.NewRegistry(nil)
	r.Register(tools.Metadata{
		Name:     "echo",
		ReadOnly: true,
		Params:   []tools.Param{{Name: "text", Type: tools.TypeString, Required: true}},
	}, func(_ context.Context, args tools.Args) (string, any, error) {
		text, err := args.String("text")
		if err != nil {
			return "", nil, err
		}
		return "echoed", map[string]string{"text": text.OrEmpty()}, nil
	})
	r.Register(tools.Metadata{Name: "clash", Destructive: true}, func(context.Context, tools.Args) (string, any, error) {
		return "", nil, &errs.ConflictError{ResourceURL: "/cal/a.ics", Reason: errs.ReasonStale, Message: "changed elsewhere"}
	})
	return r
}

func decodeResponse(t *testing.T, res *http.Response) tools.Response {
	t.Helper()
	defer res.Body.Close()
	var out tools.Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestServerRoutesAndAuth(t *testing.T) {
	s := New(Options{Registry: testRegistry(), Auth: BearerAuth{Token: "t"}})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/tools", nil)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	res.Body.Close()

	req.Header.Set("Authorization", "Bearer wrong")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	res.Body.Close()

	req.Header.Set("Authorization", "Bearer t")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var listing struct {
		Tools []tools.Metadata `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listing))
	res.Body.Close()
	require.Len(t, listing.Tools, 2)
	assert.Equal(t, "clash", listing.Tools[0].Name)
	assert.True(t, listing.Tools[0].Destructive)
}

func TestInvoke(t *testing.T) {
	s := New(Options{Registry: testRegistry()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	post := func(name, body string) *http.Response {
		res, err := http.Post(ts.URL+"/v1/tools/"+name, "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		return res
	}

	res := post("echo", `{"text":"hi"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	out := decodeResponse(t, res)
	assert.True(t, out.OK)
	assert.Equal(t, "echoed", out.Summary)

	res = post("echo", `{}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	out = decodeResponse(t, res)
	require.NotNil(t, out.Error)
	assert.Equal(t, errs.KindValidation, out.Error.Kind)

	res = post("clash", ``)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	out = decodeResponse(t, res)
	assert.Equal(t, errs.KindConflict, out.Error.Kind)
	assert.Contains(t, out.Error.Hint, "re-fetch")

	res = post("nope", `{}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()

	res, err := http.Get(ts.URL + "/v1/tools/echo")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/tools/echo", nil)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	res.Body.Close()
}
