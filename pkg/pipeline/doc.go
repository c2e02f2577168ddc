// Package pipeline wires the crawl and download phases together.
//
// A run loads both checkpoints, starts a new crawl from the configured root
// or resumes the pending URLs of the saved one, then downloads the proxy
// link of every visited page. Checkpoints written for another root URL,
// depth or proxy prefix are ignored with a warning; a checkpoint that
// cannot be decoded stops the run.
package pipeline
