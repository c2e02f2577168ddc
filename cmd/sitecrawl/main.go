// Package main is the sitecrawl command line.
//
// sitecrawl walks one website depth first, records every in-domain page
// and downloads each page's content through a reader proxy. Progress is
// checkpointed so an interrupted run continues where it stopped.
//
// Usage:
//
//	sitecrawl run --url https://example.com/ --depth 2
//	sitecrawl status
package main

func main() {
	Execute()
}
