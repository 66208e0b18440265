// Command luabridge runs behavioral bus models written in Lua on a small
// discrete-event kernel.
package main

import "github.com/sarchlab/luabridge/luabridge/cmd"

func main() {
	cmd.Execute()
}
