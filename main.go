package main

import "github.com/ironverse/guardian/cmd"

func main() {
	cmd.Execute()
}
