package main

import "github.com/agentic-research/nsjson/cmd"

func main() {
	cmd.Execute()
}
