package main

import (
	"github.com/tidelineproject/tideline/cmd/tidectl/cmd"
	"github.com/tidelineproject/tideline/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	cmd.Execute()
}
