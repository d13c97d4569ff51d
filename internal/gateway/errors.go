package gateway

import "errors"

var (
	// ErrConnectivity covers transport failures, non-200 responses and
	// responses that are not valid envelope JSON.
	ErrConnectivity = errors.New("gateway: request failed")

	// ErrNoData indicates the gateway answered but returned no payload.
	// Distinct from ErrConnectivity so pollers can tell "gateway down"
	// from "gateway has nothing to say".
	ErrNoData = errors.New("gateway: empty response")

	// ErrRejected indicates a well-formed response without the success
	// envelope: the gateway understood the request and refused it.
	ErrRejected = errors.New("gateway: request rejected")
)
