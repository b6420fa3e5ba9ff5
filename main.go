package main

import (
	_ "time/tzdata"

	"github.com/Tiliavir/ttt-anomalies/cmd"
)

func main() {
	cmd.Execute()
}
