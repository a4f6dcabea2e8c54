package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"mdvrp/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationDetail turns the first validator failure into a client message.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func validateRunRequest(req *model.RunRequest) error {
	if err := validate.Struct(req); err != nil {
		return errors.New(validationDetail(err))
	}
	hasName := strings.TrimSpace(req.InstanceName) != ""
	hasText := strings.TrimSpace(req.Instance) != ""
	if !hasName && !hasText {
		return errors.New("one of instanceName or instance is required")
	}
	if hasName && hasText {
		return errors.New("instanceName and instance are mutually exclusive")
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	if err := validate.Struct(req); err != nil {
		return errors.New(validationDetail(err))
	}
	return nil
}
