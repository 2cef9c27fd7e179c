package main

import "github.com/mickamy/ormgraph/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
