// ipcrecord records, inspects and replays service transaction logs.
package main

import (
	"os"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
