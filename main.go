package main

import "MTCPlayer/cmd"

func main() {
	cmd.Execute()
}
