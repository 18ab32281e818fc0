// Package device classifies the current client environment for the
// device_last_viewed_on field. Classification is a pure function of the
// user agent and viewport width.
package device

import (
	"strings"

	"projectally/api/internal/store"
)

// Viewports narrower than this are treated as phone-sized regardless of UA.
const smallScreenWidth = 768

var phoneMarkers = []string{"android", "webos", "iphone", "ipod", "blackberry", "iemobile", "opera mini"}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "silk"}

// Classify maps a user agent and viewport width to desktop, mobile or tablet.
func Classify(userAgent string, viewportWidth int) store.DeviceType {
	ua := strings.ToLower(userAgent)

	for _, marker := range tabletMarkers {
		if strings.Contains(ua, marker) {
			return store.DeviceTablet
		}
	}
	for _, marker := range phoneMarkers {
		if strings.Contains(ua, marker) {
			// Android tablets advertise "android" without "mobile".
			if marker == "android" && !strings.Contains(ua, "mobile") {
				return store.DeviceTablet
			}
			return store.DeviceMobile
		}
	}
	if viewportWidth > 0 && viewportWidth < smallScreenWidth {
		return store.DeviceMobile
	}
	return store.DeviceDesktop
}
