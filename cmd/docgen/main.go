// Command docgen builds the AsciiDoc API reference from the annotations on
// the handlers in internal/api.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

var (
	reTitle = regexp.MustCompile(`// @Title: (.*)`)
	reRoute = regexp.MustCompile(`// @Route: (.*)`)
	reDesc  = regexp.MustCompile(`// @Description: (.*)`)
	reResp  = regexp.MustCompile(`// @Response: (.*)`)
)

func main() {
	apiDir := flag.String("api", "internal/api", "directory with annotated handlers")
	out := flag.String("out", "internal/docs/content/api.adoc", "output file")
	flag.Parse()

	endpoints, err := scanDir(*apiDir)
	if err != nil {
		slog.Error("scan handlers", "dir", *apiDir, "error", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		slog.Error("create output", "path", *out, "error", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := writeAsciiDoc(f, endpoints); err != nil {
		slog.Error("write reference", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s (%d endpoints)\n", *out, len(endpoints))
}

// scanDir collects endpoints from the non-test Go files in dir, in file
// name order.
func scanDir(dir string) ([]Endpoint, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, file := range files {
		name := file.Name()
		if strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var endpoints []Endpoint
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		found, err := scan(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		endpoints = append(endpoints, found...)
	}
	return endpoints, nil
}

// scan reads annotation blocks; a block ends at its @Response line.
func scan(r io.Reader) ([]Endpoint, error) {
	var (
		endpoints []Endpoint
		current   Endpoint
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
			current.Title = strings.TrimSpace(match[1])
		}
		if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
			current.Route = strings.TrimSpace(match[1])
		}
		if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
			current.Description = strings.TrimSpace(match[1])
		}
		if match := reResp.FindStringSubmatch(line); len(match) > 1 {
			current.Response = strings.TrimSpace(match[1])
			if current.Title != "" && current.Route != "" {
				endpoints = append(endpoints, current)
			}
			current = Endpoint{}
		}
	}
	return endpoints, scanner.Err()
}

func writeAsciiDoc(w io.Writer, endpoints []Endpoint) error {
	var b strings.Builder
	b.WriteString("= votedesk API reference\n\n")
	b.WriteString("Generated from the handler annotations in `internal/api` by `go run ./cmd/docgen`. Do not edit.\n\n")
	b.WriteString("All endpoints exchange JSON. Errors are returned as `{\"error\": \"...\"}`.\n")

	for _, ep := range endpoints {
		method, path, _ := strings.Cut(ep.Route, " ")
		fmt.Fprintf(&b, "\n== %s\n\n", ep.Title)
		fmt.Fprintf(&b, "`%s` `+%s+`\n\n", method, path)
		if ep.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", ep.Description)
		}
		fmt.Fprintf(&b, "Response:: `+%s+`\n", ep.Response)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
