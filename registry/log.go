package registry

import "github.com/sirupsen/logrus"

// log is the package-level structured logger every Client request
// path writes to, the same pattern the teacher's engine package uses
// for its *logrus.Entry loggers.
var log = logrus.WithField("component", "registry")
