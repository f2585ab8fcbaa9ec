// Package main provides the linksync CLI entrypoint.
//
// linksync mirrors the pages behind stored links to a local directory tree.
//
// Usage:
//
//	linksync sync <id>...
//	linksync get <id>
//	linksync list
package main

func main() {
	Execute()
}
