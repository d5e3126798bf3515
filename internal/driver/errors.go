package driver

import "errors"

var (
	// ErrNoBank is returned by New without a motor bank.
	ErrNoBank = errors.New("driver: motor bank is required")

	// ErrNoController is returned by New without a protocol controller.
	ErrNoController = errors.New("driver: controller is required")

	// ErrSendFailed wraps a wire send that failed after the motor had
	// already transitioned.
	ErrSendFailed = errors.New("driver: command not sent")
)
