package ofp4sw

import (
	"fmt"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/pkg/errors"
)

// ErrClassify reports that a frame no longer parses as a link layer frame.
var ErrClassify = errors.New("frame classification failed")

// mismatchError marks an action that does not apply to the frame. Callers
// log it and carry on.
type mismatchError struct {
	action string
	want   string
}

func (self mismatchError) Error() string {
	return fmt.Sprintf("%s requires %s", self.action, self.want)
}

func mismatch(action, want string) error {
	return mismatchError{action: action, want: want}
}

func isMismatch(err error) bool {
	_, ok := errors.Cause(err).(mismatchError)
	return ok
}

func errBadType() error {
	return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_TYPE}
}

func errBadArgument() error {
	return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_ARGUMENT}
}
