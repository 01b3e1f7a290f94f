package jobs

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/example/teeswap/internal/brs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params is the unencrypted job description as submitted through the UI or
// CLI, validated before credentials are sealed and the row written.
type Params struct {
	ClubSlug string `validate:"required"`
	CourseID string `validate:"required"`

	Username string `validate:"required"`
	Password string `validate:"required"`

	TargetDate  string `validate:"required,datetime=2006/01/02"`
	Earliest    string `validate:"required,datetime=15:04"`
	Latest      string `validate:"required,datetime=15:04"`
	CurrentTime string `validate:"required,datetime=15:04"`

	RequiredSeats int      `validate:"min=1,max=4"`
	AcceptAtLeast bool     `validate:"-"`
	PlayerIDs     []string `validate:"required,min=1,max=4,dive,required"`

	PollSeconds int `validate:"min=1"`
	MaxMinutes  int `validate:"min=1"`
}

func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	// Cross-field rule the tags cannot express.
	e, err := brs.ToMinutes(p.Earliest)
	if err != nil {
		return err
	}
	l, err := brs.ToMinutes(p.Latest)
	if err != nil {
		return err
	}
	if e > l {
		return fmt.Errorf("earliest %s is after latest %s", p.Earliest, p.Latest)
	}
	return nil
}
