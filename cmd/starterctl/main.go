package main

import "starterlock/internal/cli"

func main() {
	cli.Execute()
}
