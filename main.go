// Package main is the entry point for votedesk (vdk).
package main

import "votedesk.mini/vdk/internal/cli"

func main() {
	cli.Execute()
}
