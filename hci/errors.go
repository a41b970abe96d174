package hci

import "fmt"

// ErrorCode is an HCI status / reason code [Vol 2, Part D, 1.3].
type ErrorCode uint8

const (
	ErrSuccess                        ErrorCode = 0x00
	ErrUnknownCommand                 ErrorCode = 0x01
	ErrUnknownConnectionID            ErrorCode = 0x02
	ErrHardwareFailure                ErrorCode = 0x03
	ErrPageTimeout                    ErrorCode = 0x04
	ErrAuthenticationFailure          ErrorCode = 0x05
	ErrMemoryCapacityExceeded         ErrorCode = 0x07
	ErrConnectionTimeout              ErrorCode = 0x08
	ErrConnectionLimitExceeded        ErrorCode = 0x09
	ErrConnectionAlreadyExists        ErrorCode = 0x0B
	ErrCommandDisallowed              ErrorCode = 0x0C
	ErrRejectedLimitedResources       ErrorCode = 0x0D
	ErrInvalidParameters              ErrorCode = 0x12
	ErrRemoteUserTerminated           ErrorCode = 0x13
	ErrRemoteLowResources             ErrorCode = 0x14
	ErrRemotePowerOff                 ErrorCode = 0x15
	ErrConnectionTerminatedLocalHost  ErrorCode = 0x16
	ErrUnsupportedRemoteFeature       ErrorCode = 0x1A
	ErrUnspecified                    ErrorCode = 0x1F
	ErrLMPResponseTimeout             ErrorCode = 0x22
	ErrControllerBusy                 ErrorCode = 0x3A
	ErrUnacceptableConnectionParams   ErrorCode = 0x3B
	ErrAdvertisingTimeout             ErrorCode = 0x3C
	ErrConnectionTerminatedMICFailure ErrorCode = 0x3D
	ErrConnectionFailedToEstablish    ErrorCode = 0x3E
	ErrUnknownAdvertisingIdentifier   ErrorCode = 0x42
	ErrOperationCancelledByHost       ErrorCode = 0x44
)

var errorNames = map[ErrorCode]string{
	ErrSuccess:                        "success",
	ErrUnknownCommand:                 "unknown HCI command",
	ErrUnknownConnectionID:            "unknown connection identifier",
	ErrHardwareFailure:                "hardware failure",
	ErrPageTimeout:                    "page timeout",
	ErrAuthenticationFailure:          "authentication failure",
	ErrMemoryCapacityExceeded:         "memory capacity exceeded",
	ErrConnectionTimeout:              "connection timeout",
	ErrConnectionLimitExceeded:        "connection limit exceeded",
	ErrConnectionAlreadyExists:        "connection already exists",
	ErrCommandDisallowed:              "command disallowed",
	ErrRejectedLimitedResources:       "connection rejected due to limited resources",
	ErrInvalidParameters:              "invalid HCI command parameters",
	ErrRemoteUserTerminated:           "remote user terminated connection",
	ErrRemoteLowResources:             "remote device terminated connection due to low resources",
	ErrRemotePowerOff:                 "remote device terminated connection due to power off",
	ErrConnectionTerminatedLocalHost:  "connection terminated by local host",
	ErrUnsupportedRemoteFeature:       "unsupported remote feature",
	ErrUnspecified:                    "unspecified error",
	ErrLMPResponseTimeout:             "LMP/LL response timeout",
	ErrControllerBusy:                 "controller busy",
	ErrUnacceptableConnectionParams:   "unacceptable connection parameters",
	ErrAdvertisingTimeout:             "advertising timeout",
	ErrConnectionTerminatedMICFailure: "connection terminated due to MIC failure",
	ErrConnectionFailedToEstablish:    "connection failed to be established",
	ErrUnknownAdvertisingIdentifier:   "unknown advertising identifier",
	ErrOperationCancelledByHost:       "operation cancelled by host",
}

func (e ErrorCode) Error() string {
	if s, ok := errorNames[e]; ok {
		return fmt.Sprintf("hci: %s (0x%02X)", s, uint8(e))
	}
	return fmt.Sprintf("hci: error code 0x%02X", uint8(e))
}

func (e ErrorCode) String() string { return e.Error() }
