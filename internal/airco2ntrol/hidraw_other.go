//go:build !linux

package airco2ntrol

import (
	"errors"
	"os"
)

func setFeature(*os.File, Key) error {
	return errors.New("hidraw is only supported on linux")
}
