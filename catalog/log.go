package catalog

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "catalog")
