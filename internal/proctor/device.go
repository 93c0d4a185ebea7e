package proctor

import (
	"fmt"
	"regexp"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var mobileAgent = regexp.MustCompile(`(?i)mobi|android|iphone|ipad|ipod|tablet|silk|kindle|opera mini|iemobile`)

// CheckDevice rejects phones, tablets, touch-primary input and narrow
// viewports. The error wraps ErrDeviceRestricted.
func CheckDevice(info model.ClientInfo, minViewport int) error {
	switch {
	case mobileAgent.MatchString(info.UserAgent):
		return fmt.Errorf("%w: mobile browser", ErrDeviceRestricted)
	case info.TouchPrimary:
		return fmt.Errorf("%w: touch input", ErrDeviceRestricted)
	case info.ViewportWidth < minViewport:
		return fmt.Errorf("%w: viewport %dpx narrower than %dpx", ErrDeviceRestricted, info.ViewportWidth, minViewport)
	}
	return nil
}
