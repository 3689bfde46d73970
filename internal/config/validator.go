package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
)

// Validate validates the configuration using struct tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if _, err := gatemode.Parse(c.Mode); err != nil {
		return err
	}
	if c.BlockThreshold <= c.ApprovalThreshold {
		return fmt.Errorf("block_threshold (%v) must exceed approval_threshold (%v)",
			c.BlockThreshold, c.ApprovalThreshold)
	}
	return nil
}

// formatValidationErrors turns validator's error list into one
// actionable message.
func formatValidationErrors(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var msgs []string
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation",
			strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
