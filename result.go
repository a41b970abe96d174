package l2cap

import (
	"fmt"

	"github.com/rigado/l2cap/hci"
)

// ConnectionResultCode classifies the outcome of a fixed channel connect
// request.
type ConnectionResultCode int

const (
	ResultSuccess ConnectionResultCode = iota
	ResultFailNoServiceRegistered
	ResultFailAllServicesHaveChannel
	ResultFailHCIError
)

func (c ConnectionResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultFailNoServiceRegistered:
		return "no service registered"
	case ResultFailAllServicesHaveChannel:
		return "all services have channel"
	case ResultFailHCIError:
		return "hci error"
	default:
		return fmt.Sprintf("result(%d)", int(c))
	}
}

// ConnectionResult is handed to a requester's failure callback. HCIError is
// only meaningful for ResultFailHCIError.
type ConnectionResult struct {
	Code     ConnectionResultCode
	HCIError hci.ErrorCode
}

func (r ConnectionResult) String() string {
	if r.Code == ResultFailHCIError {
		return fmt.Sprintf("%s: %s", r.Code, r.HCIError)
	}
	return r.Code.String()
}

// OnConnectionFailure receives the reason a connect request could not be
// satisfied.
type OnConnectionFailure func(ConnectionResult)
