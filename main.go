package main

import "github.com/prasetya/cms-auth/cmd"

func main() {
	cmd.Execute()
}
