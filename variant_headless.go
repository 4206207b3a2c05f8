//go:build headless

package trajplot

import "github.com/sirupsen/logrus"

// Headless builds (servers, containers) have no browser to launch. The window
// has to be opened by hand from another machine.
func openBrowser(url string) {
	logrus.Warnf("headless build, open %s in a browser to see the figure", url)
}
