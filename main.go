package main

import "github.com/bvisness/hello/cmd"

func main() {
	cmd.Execute()
}
