package main

import "edgeml/internal/cmd"

func main() {
	cmd.Execute()
}
