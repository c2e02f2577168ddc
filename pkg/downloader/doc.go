// Package downloader fetches the proxy link of every crawled page and
// stores each body as responses/response<N>.md, where N is the link's
// position in the crawl state. A link is complete when it is recorded in
// the download state or its file already exists; complete links are never
// fetched again.
package downloader
