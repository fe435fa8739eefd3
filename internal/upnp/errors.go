package upnp

import "fmt"

// DeviceRejectedError represents a UPnP/SOAP error response from a device.
type DeviceRejectedError struct {
	Action      string
	Code        string
	Description string
}

func (e *DeviceRejectedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("device action %s rejected: code %s", e.Action, e.Code)
	}
	return fmt.Sprintf("device action %s rejected: code %s (%s)", e.Action, e.Code, e.Description)
}

// DeviceTimeoutError indicates a request timed out.
type DeviceTimeoutError struct {
	Action string
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("device action %s timed out", e.Action)
}

// DeviceUnreachableError indicates the device could not be reached.
type DeviceUnreachableError struct {
	Action string
	Err    error
}

func (e *DeviceUnreachableError) Error() string {
	return fmt.Sprintf("device action %s unreachable: %v", e.Action, e.Err)
}

func (e *DeviceUnreachableError) Unwrap() error {
	return e.Err
}
