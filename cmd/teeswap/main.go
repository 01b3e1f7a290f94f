package main

import "github.com/example/teeswap/cmd"

func main() {
	cmd.Execute()
}
