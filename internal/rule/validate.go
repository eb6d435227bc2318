package rule

import (
	"errors"
	"fmt"

	"recsched/internal/reservation"
)

var ErrNoEncodeMode = errors.New("no encode mode selected")

// ValidateEncode checks the structure of e against the number of
// configured encoders.
func ValidateEncode(e reservation.EncodeOption, encoders int) error {
	selected := false
	for i, s := range e.Slots() {
		if s.Mode == nil {
			if s.Directory != nil {
				return fmt.Errorf("directory%d set without mode%d", i+1, i+1)
			}
			continue
		}
		selected = true
		if *s.Mode < 0 || *s.Mode >= encoders {
			return fmt.Errorf("mode%d: %d out of range [0,%d)", i+1, *s.Mode, encoders)
		}
	}
	if !selected {
		return ErrNoEncodeMode
	}
	return nil
}
