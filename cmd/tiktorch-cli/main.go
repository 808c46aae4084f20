package main

import "tiktorch/internal/cli"

func main() {
	cli.Execute(cli.RootCmd())
}
