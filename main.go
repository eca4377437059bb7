// Package main is the entry point of the pdvd-enricher command line.
package main

import "github.com/ortelius/pdvd-enricher/cmd"

func main() {
	cmd.Execute()
}
