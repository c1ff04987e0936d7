package simconfig

import (
	"fmt"

	"github.com/aerugo/simcash/internal/simerrors"
	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate checks c against its struct tags and against the domain rules
// struct tags cannot express (duplicate agent IDs, LSM bounds consistency),
// returning every violation found as a single simerrors.List — the same
// "report the whole batch, not just the first" discipline the teacher's
// ValidateCore used for missing env vars.
func (c Config) Validate() error {
	var errs simerrors.List

	if err := structValidator.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				errs = append(errs, simerrors.New(simerrors.ConfigurationInvalid,
					fmt.Sprintf("field %q failed validation %q", e.Namespace(), e.Tag())))
			}
		} else {
			errs = append(errs, simerrors.Wrap(simerrors.ConfigurationInvalid, err, "validating configuration"))
		}
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if seen[string(a.ID)] {
			errs = append(errs, simerrors.New(simerrors.ConfigurationInvalid,
				fmt.Sprintf("duplicate agent id %q", a.ID)))
			continue
		}
		seen[string(a.ID)] = true
	}

	if c.LSM.Enabled && c.LSM.MaxCycleLength > 0 && len(c.Agents) > 0 && c.LSM.MaxCycleLength > len(c.Agents) {
		errs = append(errs, simerrors.New(simerrors.ConfigurationInvalid,
			fmt.Sprintf("lsm max_cycle_length %d exceeds agent count %d", c.LSM.MaxCycleLength, len(c.Agents))))
	}

	return errs.ErrOrNil()
}
