package main

import "github.com/project-flogo/flowwatch/cli"

func main() {
	cli.Execute()
}
