package main

import "github.com/rvhq/tokgrow/cmd"

func main() {
	cmd.Execute()
}
