package main

import "cdchanger/internal/cli"

func main() {
	cli.Execute()
}
