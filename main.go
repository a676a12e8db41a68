// Package main is the entry point of embedfill, which backfills vector
// embeddings for table rows that have not been processed yet.
package main

import "embedfill/cmd"

func main() {
	cmd.Execute()
}
