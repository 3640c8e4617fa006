package main

import "github.com/No1412lee/il2cpp-plus/cmd/liveness/cmd"

func main() {
	cmd.Execute()
}
