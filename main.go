package main

import "github.com/chogm/discordlite/cmd"

func main() {
	cmd.Execute()
}
