package main

import "mlmhead/cmd/mlmhead/cmd"

func main() {
	cmd.Execute()
}
