package main

import "github.com/jfmyers9/scrobbler/cmd"

func main() {
	cmd.Execute()
}
