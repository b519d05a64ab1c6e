// Package main runs the ensenso camera driver.
package main

import (
	"go.viam.com/utils"

	"go.viam.com/ensenso/driver"
	"go.viam.com/ensenso/logging"
)

func main() {
	utils.ContextualMain(driver.RunDriver, logging.NewLogger("ensenso-driver"))
}
