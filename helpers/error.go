package helpers

import (
	"strings"

	"github.com/juju/errors"
)

func FoldErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var single error
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			single = e
			ss = append(ss, e.Error())
		}
	}
	switch len(ss) {
	case 0:
		return nil
	case 1: // keep type for errors.Is*
		return single
	}
	return errors.New(strings.Join(ss, "\n"))
}
