package main

import "github.com/vietddude/failsafe/internal/cli"

func main() {
	cli.Execute()
}
