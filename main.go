package main

import "github.com/groupfs/groupfs/cmd"

func main() {
	cmd.Execute()
}
