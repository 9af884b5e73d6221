package errors

import "errors"

var (
	ErrRuleSetNotFound = errors.New("rule set not found")

	ErrNoDepositPolicy = errors.New("no deposit policy covers this booking")

	ErrInvalidStayRange = errors.New("end date must be after start date")
)
