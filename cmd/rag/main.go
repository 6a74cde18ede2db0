package main

import "multirag/internal/cli"

func main() {
	cli.Execute()
}
