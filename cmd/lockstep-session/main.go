package main

import "github.com/skycoin/lockstep/cmd/lockstep-session/commands"

func main() {
	commands.Execute()
}
