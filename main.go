package main

import "github.com/mcpjungle/mcpchat/cmd"

func main() {
	cmd.Execute()
}
