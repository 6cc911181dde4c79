// Package errutil contains small helpers to simplify working with errors
package errutil

import "io"

// Close closes the closer and sets err to the close error if err is nil.
// Meant to be deferred: defer errutil.Close(f, &err)
func Close(c io.Closer, err *error) {
	e := c.Close()
	if *err == nil && e != nil {
		*err = e
	}
}
