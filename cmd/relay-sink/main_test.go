package main

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/thermorelay/log2"
)

func TestHandler(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newHandler(log2.NewTest(t, log2.LDebug), 64))
	defer srv.Close()

	cases := []struct {
		name   string
		method string
		body   string
		status int
		expect string
	}{
		{"post", http.MethodPost, "Local temperature is 21.50C", 200, replyPost},
		{"get", http.MethodGet, "", 200, replyGet},
		{"put", http.MethodPut, "", 405, "method not allowed\n"},
		{"post-too-large", http.MethodPost, strings.Repeat("x", 65), 413, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			req, err := http.NewRequest(c.method, srv.URL+"/", strings.NewReader(c.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			b, _ := ioutil.ReadAll(resp.Body)
			assert.Equal(t, c.status, resp.StatusCode)
			if c.expect != "" {
				assert.Equal(t, c.expect, string(b))
			}
		})
	}
}
