package main

import "tender-ingest/cmd"

func main() {
	cmd.Execute()
}
