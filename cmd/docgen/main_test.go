package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const annotated = `package api

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth() {}

// @Title: Incomplete
// @Response: ignored
func (s *Service) helper() {}

// @Title: Submit Action
// @Route: POST /api/actions/{kind}
// @Response: PendingAction object
func (s *Service) HandleSubmit() {}
`

func TestScanAnnotations(t *testing.T) {
	endpoints, err := scan(strings.NewReader(annotated))
	require.NoError(t, err)
	require.Equal(t, []Endpoint{
		{Title: "Get Health", Route: "GET /api/health", Description: "Returns server health status", Response: `{"status": "ok"}`},
		{Title: "Submit Action", Route: "POST /api/actions/{kind}", Response: "PendingAction object"},
	}, endpoints)
}

func TestWriteAsciiDoc(t *testing.T) {
	var b strings.Builder
	require.NoError(t, writeAsciiDoc(&b, []Endpoint{
		{Title: "Get Health", Route: "GET /api/health", Description: "Returns server health status", Response: `{"status": "ok"}`},
	}))
	out := b.String()
	require.True(t, strings.HasPrefix(out, "= votedesk API reference\n"))
	require.Contains(t, out, "== Get Health\n")
	require.Contains(t, out, "`GET` `+/api/health+`")
	require.Contains(t, out, "Response:: `+{\"status\": \"ok\"}+`")
}

func TestScanDirSkipsTests(t *testing.T) {
	endpoints, err := scanDir("../../internal/api")
	require.NoError(t, err)
	require.NotEmpty(t, endpoints)
	for _, ep := range endpoints {
		require.NotEmpty(t, ep.Route)
	}
}
